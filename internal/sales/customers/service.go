package customers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Service manages customer master data. Credit movements go through the
// credit engine instead.
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

func (s *Service) Create(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.Invalid("%v", err)
	}
	if req.CreditLimit.IsNegative() {
		return nil, shared.Invalid("credit limit must not be negative")
	}
	req.Code = strings.TrimSpace(req.Code)

	existing, err := s.repo.GetCustomerByCode(ctx, req.Code)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, fmt.Errorf("customers: check code: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: customer code %q already exists", shared.ErrConflict, req.Code)
	}

	customer := Customer{
		Code:             req.Code,
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		Address:          req.Address,
		Status:           StatusActive,
		PaymentTermsDays: req.PaymentTermsDays,
		CreditLimit:      req.CreditLimit,
		UsedCredit:       decimal.Zero,
		AvailableCredit:  req.CreditLimit,
		OverdueAmount:    decimal.Zero,
		TotalOutstanding: decimal.Zero,
		CreditStatus:     CreditGood,
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		id, err := tx.CreateCustomer(ctx, customer)
		if err != nil {
			return err
		}
		customer.ID = id
		if !req.CreditLimit.IsPositive() {
			return nil
		}
		_, err = tx.InsertCreditHistory(ctx, CreditHistoryEntry{
			EventID:      uuid.New(),
			CustomerID:   id,
			Kind:         HistoryLimit,
			Direction:    DirectionSet,
			Amount:       req.CreditLimit,
			UsedBefore:   decimal.Zero,
			UsedAfter:    decimal.Zero,
			LimitBefore:  decimal.Zero,
			LimitAfter:   req.CreditLimit,
			StatusBefore: CreditGood,
			StatusAfter:  CreditGood,
			Reason:       "initial credit limit",
			CreatedBy:    shared.ActorFromContext(ctx),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("customers: create: %w", err)
	}
	s.logger.Info("customer created", slog.Int64("customer_id", customer.ID), slog.String("code", customer.Code))
	return s.repo.GetCustomer(ctx, customer.ID)
}

// Update applies contact and terms changes. Blocked customers cannot be
// reactivated here; that is UnblockCustomer's job.
func (s *Service) Update(ctx context.Context, id int64, req UpdateCustomerRequest) (*Customer, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.Invalid("%v", err)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		current, err := tx.GetCustomerForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if req.Active != nil && current.Status == StatusBlocked {
			return &shared.ModificationNotAllowedError{Entity: "customer", ID: id, Status: string(current.Status), Reason: "blocked customers are released through unblock"}
		}
		return tx.UpdateCustomer(ctx, id, req)
	})
	if err != nil {
		return nil, fmt.Errorf("customers: update: %w", err)
	}
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListCustomersRequest) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, req)
}

// Delete removes a customer that has no sales, quotations, payments, or open
// balance.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		c, err := tx.GetCustomerForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if c.TotalOutstanding.IsPositive() || c.UsedCredit.IsPositive() {
			return &shared.DeletionBlockedError{Entity: "customer", ID: id, Reason: "outstanding balance"}
		}
		deps, err := tx.CountCustomerDependents(ctx, id)
		if err != nil {
			return err
		}
		switch {
		case deps.Payments > 0:
			return &shared.DeletionBlockedError{Entity: "customer", ID: id, Reason: fmt.Sprintf("%d payments exist", deps.Payments)}
		case deps.Sales > 0:
			return &shared.DeletionBlockedError{Entity: "customer", ID: id, Reason: fmt.Sprintf("%d sales exist", deps.Sales)}
		case deps.Quotations > 0:
			return &shared.DeletionBlockedError{Entity: "customer", ID: id, Reason: fmt.Sprintf("%d quotations exist", deps.Quotations)}
		}
		return tx.DeleteCustomer(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("customers: delete: %w", err)
	}
	return nil
}
