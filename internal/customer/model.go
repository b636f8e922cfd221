package customer

import "time"

// Customer is a store account. Credit balance holds settlement remainders
// carried forward as store credit; it never goes negative.
type Customer struct {
	ID              int64     `json:"id" db:"id"`
	Code            string    `json:"code" db:"code"`
	Name            string    `json:"name" db:"name"`
	Phone           *string   `json:"phone,omitempty" db:"phone"`
	Address         *string   `json:"address,omitempty" db:"address"`
	Neighborhood    *string   `json:"neighborhood,omitempty" db:"neighborhood"`
	CreditBalance   float64   `json:"credit_balance" db:"credit_balance"`
	ProfileComplete bool      `json:"profile_complete" db:"profile_complete"`
	Internal        bool      `json:"internal" db:"internal"`
	RegisteredAt    time.Time `json:"registered_at" db:"registered_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// HasFullProfile reports whether phone and address are both on file.
func (c Customer) HasFullProfile() bool {
	return c.Phone != nil && *c.Phone != "" && c.Address != nil && *c.Address != ""
}
