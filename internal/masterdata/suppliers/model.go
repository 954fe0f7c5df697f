package suppliers

import (
	"time"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Status of a supplier account.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusBlocked  Status = "blocked"
)

// Supplier represents a supplier entity.
type Supplier struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnsureActive refuses inactive and blocked suppliers.
func (s *Supplier) EnsureActive() error {
	if s.Status != StatusActive {
		return &shared.BlockedCounterpartyError{Entity: "supplier", ID: s.ID, Status: string(s.Status)}
	}
	return nil
}
