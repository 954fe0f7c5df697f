package customers

import "github.com/shopspring/decimal"

// CreateCustomerRequest opens a customer account. The initial credit limit is
// recorded in the credit history.
type CreateCustomerRequest struct {
	Code             string          `json:"code" validate:"required,max=50"`
	Name             string          `json:"name" validate:"required,max=200"`
	Email            string          `json:"email,omitempty" validate:"omitempty,email"`
	Phone            string          `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address          string          `json:"address,omitempty" validate:"omitempty,max=500"`
	PaymentTermsDays int             `json:"payment_terms_days" validate:"gte=0,lte=365"`
	CreditLimit      decimal.Decimal `json:"credit_limit"`
}

// UpdateCustomerRequest lists the only fields a generic update may touch.
// Status and every credit field are owned by the credit engine.
type UpdateCustomerRequest struct {
	Name             *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Email            *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone            *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Address          *string `json:"address,omitempty" validate:"omitempty,max=500"`
	PaymentTermsDays *int    `json:"payment_terms_days,omitempty" validate:"omitempty,gte=0,lte=365"`
	Active           *bool   `json:"active,omitempty"`
}

// ListCustomersRequest filters the customer listing.
type ListCustomersRequest struct {
	Status       Status       `json:"status,omitempty"`
	CreditStatus CreditStatus `json:"credit_status,omitempty"`
	Search       string       `json:"search,omitempty"`
	Limit        int          `json:"limit"`
	Offset       int          `json:"offset"`
}
