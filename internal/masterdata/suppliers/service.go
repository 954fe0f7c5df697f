package suppliers

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// SupplierInput is the editable part of a supplier.
type SupplierInput struct {
	Code    string `json:"code" validate:"required,max=50"`
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email,omitempty" validate:"omitempty,email"`
	Phone   string `json:"phone,omitempty" validate:"max=50"`
	Address string `json:"address,omitempty" validate:"max=500"`
}

// ListFilters narrows the supplier listing.
type ListFilters struct {
	Status Status
	Search string
	Limit  int
	Offset int
}

type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validate: validator.New(), logger: logger}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Supplier, int, error) {
	return s.repo.ListSuppliers(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (*Supplier, error) {
	return s.repo.GetSupplier(ctx, id)
}

func (s *Service) Create(ctx context.Context, in SupplierInput) (*Supplier, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	id, err := s.repo.CreateSupplier(ctx, &Supplier{
		Code: in.Code, Name: in.Name, Email: in.Email, Phone: in.Phone, Address: in.Address, Status: StatusActive,
	})
	if err != nil {
		return nil, err
	}
	return s.repo.GetSupplier(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, in SupplierInput) (*Supplier, error) {
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSupplier(ctx, id, in); err != nil {
		return nil, err
	}
	return s.repo.GetSupplier(ctx, id)
}

// SetStatus activates, deactivates or blocks a supplier. Blocked and inactive
// suppliers cannot receive new purchases or payments.
func (s *Service) SetStatus(ctx context.Context, id int64, status Status) (*Supplier, error) {
	switch status {
	case StatusActive, StatusInactive, StatusBlocked:
	default:
		return nil, shared.Invalid("unknown supplier status %q", status)
	}
	if err := s.repo.UpdateSupplierStatus(ctx, id, status); err != nil {
		return nil, err
	}
	s.logger.Info("supplier status changed", slog.Int64("supplier_id", id), slog.String("status", string(status)))
	return s.repo.GetSupplier(ctx, id)
}
