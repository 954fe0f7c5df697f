package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/numbering"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Service orchestrates purchase workflows.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validate: validator.New(), logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create records a pending purchase from an active supplier.
func (s *Service) Create(ctx context.Context, req CreatePurchaseRequest) (*Purchase, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.Invalid("%v", err)
	}
	var out *Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		supplier, err := tx.GetSupplier(ctx, req.SupplierID)
		if err != nil {
			return err
		}
		if err := supplier.EnsureActive(); err != nil {
			return err
		}
		items, totals, err := buildItems(ctx, tx, req.Items)
		if err != nil {
			return err
		}
		date := req.PurchaseDate
		if date.IsZero() {
			date = s.now()
		}
		number, err := tx.NextNumber(ctx, numbering.PrefixPurchase, date)
		if err != nil {
			return err
		}
		p := &Purchase{
			Number:        number,
			SupplierID:    supplier.ID,
			SupplierName:  supplier.Name,
			PurchaseDate:  date,
			ExpectedDate:  req.ExpectedDate,
			Status:        StatusPending,
			PaymentStatus: shared.PaymentUnpaid,
			PaidAmount:    decimal.Zero,
			BalanceAmount: totals.Total,
			Notes:         req.Notes,
			CreatedBy:     shared.ActorFromContext(ctx),
			Items:         items,
		}
		p.applyTotals(totals)
		id, err := tx.InsertPurchase(ctx, p)
		if err != nil {
			return err
		}
		out, err = tx.GetPurchase(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("procurement: create purchase: %w", err)
	}
	s.logger.Info("purchase created", slog.Int64("purchase_id", out.ID), slog.String("number", out.Number))
	return out, nil
}

func buildItems(ctx context.Context, finder products.Finder, inputs []ItemInput) ([]Item, shared.Totals, error) {
	ids := make([]int64, 0, len(inputs))
	lines := make([]shared.LineAmount, 0, len(inputs))
	for i, in := range inputs {
		line := in.amount()
		if err := line.Validate(); err != nil {
			return nil, shared.Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		lines = append(lines, line)
		ids = append(ids, in.ProductID)
	}
	catalog, err := products.Lookup(ctx, finder, ids)
	if err != nil {
		return nil, shared.Totals{}, err
	}
	items := make([]Item, len(inputs))
	for i, in := range inputs {
		snap := catalog[in.ProductID].Snapshot()
		items[i] = Item{
			ProductID:          in.ProductID,
			ProductName:        snap.Name,
			ProductSKU:         snap.SKU,
			ProductDescription: snap.Description,
			Quantity:           in.Quantity,
			UnitCost:           in.UnitCost,
			DiscountAmount:     shared.RoundMoney(in.DiscountAmount),
			TaxAmount:          shared.RoundMoney(in.TaxAmount),
			LineTotal:          lines[i].Total(),
			LineOrder:          i + 1,
		}
	}
	return items, shared.SumLines(lines), nil
}

// Update edits a pending purchase.
func (s *Service) Update(ctx context.Context, id int64, req UpdatePurchaseRequest) (*Purchase, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.Invalid("%v", err)
	}
	var out *Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !p.IsModifiable() {
			return &shared.ModificationNotAllowedError{Entity: "purchase", ID: id, Status: string(p.Status)}
		}
		details := PurchaseDetails{PurchaseDate: p.PurchaseDate, ExpectedDate: p.ExpectedDate, Notes: p.Notes}
		if req.PurchaseDate != nil {
			details.PurchaseDate = *req.PurchaseDate
		}
		if req.ExpectedDate != nil {
			details.ExpectedDate = req.ExpectedDate
		}
		if req.Notes != nil {
			details.Notes = *req.Notes
		}
		if err := tx.UpdatePurchaseDetails(ctx, id, details); err != nil {
			return err
		}
		if len(req.Items) > 0 {
			if !p.PaidAmount.IsZero() {
				return &shared.ModificationNotAllowedError{Entity: "purchase", ID: id, Status: string(p.Status), Reason: "payments allocated"}
			}
			items, totals, err := buildItems(ctx, tx, req.Items)
			if err != nil {
				return err
			}
			if err := tx.ReplacePurchaseItems(ctx, id, items, totals); err != nil {
				return err
			}
		}
		out, err = tx.GetPurchase(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("procurement: update purchase: %w", err)
	}
	return out, nil
}

// Transition moves a purchase through its lifecycle.
func (s *Service) Transition(ctx context.Context, id int64, to Status) (*Purchase, error) {
	var out *Purchase
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := CheckTransition(p, to); err != nil {
			return err
		}
		if err := tx.UpdatePurchaseStatus(ctx, id, p.Status, to); err != nil {
			return err
		}
		out, err = tx.GetPurchase(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("procurement: transition purchase: %w", err)
	}
	s.logger.Info("purchase status changed", slog.Int64("purchase_id", id), slog.String("status", string(to)))
	return out, nil
}

// Delete removes a purchase that has no allocations and is not settled.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPurchaseForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if p.PaymentStatus.IsSettled() {
			return &shared.DeletionBlockedError{Entity: "purchase", ID: id, Reason: "purchase is " + string(p.PaymentStatus)}
		}
		n, err := tx.CountPurchaseAllocations(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return &shared.DeletionBlockedError{Entity: "purchase", ID: id, Reason: fmt.Sprintf("%d payment allocations exist", n)}
		}
		return tx.DeletePurchase(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("procurement: delete purchase: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Purchase, error) {
	return s.repo.GetPurchase(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListPurchasesRequest) ([]Purchase, int, error) {
	return s.repo.ListPurchases(ctx, req)
}
