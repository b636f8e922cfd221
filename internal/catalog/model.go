package catalog

import "time"

// Product is a catalog entry. Codes are immutable once sold against; a
// price change registers a new versioned code (BASE, BASE-v2, ...) so old
// charges keep their original snapshot.
type Product struct {
	ID        int64     `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	BaseCode  string    `json:"base_code" db:"base_code"`
	Version   int       `json:"version" db:"version"`
	Name      string    `json:"name" db:"name"`
	UnitCost  float64   `json:"unit_cost" db:"unit_cost"`
	UnitPrice float64   `json:"unit_price" db:"unit_price"`
	Active    bool      `json:"active" db:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
