package customer

type CreateCustomerRequest struct {
	Name         string  `json:"name" validate:"required,max=200"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	Address      *string `json:"address,omitempty" validate:"omitempty,max=200"`
	Neighborhood *string `json:"neighborhood,omitempty" validate:"omitempty,max=100"`
	// InitialCredit seeds the account's carried credit ("vale desconto").
	InitialCredit float64 `json:"initial_credit" validate:"gte=0"`
	Internal      bool    `json:"internal"`
}

type UpdateCustomerRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	Address      *string `json:"address,omitempty" validate:"omitempty,max=200"`
	Neighborhood *string `json:"neighborhood,omitempty" validate:"omitempty,max=100"`
	Internal     *bool   `json:"internal,omitempty"`
}

type ListCustomersRequest struct {
	Search         string `json:"search,omitempty"`
	OnlyIncomplete bool   `json:"only_incomplete,omitempty"`
	Limit          int    `json:"limit" validate:"gte=0,lte=500"`
	Offset         int    `json:"offset" validate:"gte=0"`
}
