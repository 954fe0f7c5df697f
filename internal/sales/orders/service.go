package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/credit"
	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/numbering"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Service manages sales. Payment fields are owned by the payment ledger.
type Service struct {
	repo     Repository
	credit   *credit.Engine
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, engine *credit.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, credit: engine, validate: validator.New(), logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, req CreateSaleRequest) (*Sale, error) {
	var sale *Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		sale, err = s.CreateTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("orders: create: %w", err)
	}
	s.logger.Info("sale created",
		slog.Int64("sale_id", sale.ID),
		slog.String("number", sale.Number),
		slog.String("total", sale.TotalAmount.StringFixed(2)))
	return sale, nil
}

// CreateTx creates a sale inside the caller's transaction: it checks the
// customer, snapshots the catalog, claims a number, inserts the sale in its
// initial status, and charges the total to the customer's used credit.
func (s *Service) CreateTx(ctx context.Context, tx TxRepository, req CreateSaleRequest) (*Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.Invalid("%v", err)
	}
	customer, err := tx.GetCustomerForUpdate(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}
	if err := customer.EnsureActive(); err != nil {
		return nil, err
	}
	if customer.CreditStatus == customers.CreditBlocked {
		return nil, &shared.BlockedCounterpartyError{Entity: "customer", ID: customer.ID, Status: "credit " + string(customer.CreditStatus)}
	}

	items, totals, err := buildItems(ctx, tx, req.Items)
	if err != nil {
		return nil, err
	}

	saleDate := req.SaleDate
	if saleDate.IsZero() {
		saleDate = s.now()
	}
	dueDate := req.DueDate
	if dueDate == nil && customer.PaymentTermsDays > 0 {
		due := saleDate.AddDate(0, 0, customer.PaymentTermsDays)
		dueDate = &due
	}
	// a converted quotation keeps its validity date as due date, even when it lapsed
	if dueDate != nil && req.QuotationID == nil && dueDate.Before(truncateDay(saleDate)) {
		return nil, shared.Invalid("due date must not be before sale date")
	}

	number, err := tx.NextNumber(ctx, numbering.PrefixSale, saleDate)
	if err != nil {
		return nil, err
	}
	sale := &Sale{
		Number:        number,
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		QuotationID:   req.QuotationID,
		SaleDate:      saleDate,
		DueDate:       dueDate,
		Status:        StatusPending,
		PaymentStatus: shared.PaymentUnpaid,
		PaidAmount:    decimal.Zero,
		BalanceAmount: totals.Total,
		Notes:         req.Notes,
		CreatedBy:     shared.ActorFromContext(ctx),
		Items:         items,
	}
	sale.applyTotals(totals)

	id, err := tx.InsertSale(ctx, sale)
	if err != nil {
		return nil, err
	}
	sale.ID = id

	if s.credit != nil && sale.TotalAmount.IsPositive() {
		if _, err := s.credit.ApplyTx(ctx, tx, credit.Movement{
			CustomerID:    customer.ID,
			Amount:        sale.TotalAmount,
			Direction:     customers.DirectionAdd,
			Reason:        "sale " + sale.Number,
			ReferenceType: "sale",
			ReferenceID:   &sale.ID,
		}); err != nil {
			return nil, err
		}
	}
	return tx.GetSale(ctx, id)
}

func buildItems(ctx context.Context, finder products.Finder, inputs []ItemInput) ([]Item, shared.Totals, error) {
	var lookupIDs []int64
	lines := make([]shared.LineAmount, 0, len(inputs))
	for i, in := range inputs {
		line := in.amount()
		if err := line.Validate(); err != nil {
			return nil, shared.Totals{}, fmt.Errorf("item %d: %w", i+1, err)
		}
		lines = append(lines, line)
		if in.Snapshot == nil {
			lookupIDs = append(lookupIDs, in.ProductID)
		}
	}
	catalog, err := products.Lookup(ctx, finder, lookupIDs)
	if err != nil {
		return nil, shared.Totals{}, err
	}

	items := make([]Item, 0, len(inputs))
	for i, in := range inputs {
		snap := in.Snapshot
		if snap == nil {
			p := catalog[in.ProductID].Snapshot()
			snap = &p
		}
		items = append(items, Item{
			ProductID:          in.ProductID,
			ProductName:        snap.Name,
			ProductSKU:         snap.SKU,
			ProductDescription: snap.Description,
			Quantity:           in.Quantity,
			UnitPrice:          in.UnitPrice,
			DiscountAmount:     shared.RoundMoney(in.DiscountAmount),
			TaxAmount:          shared.RoundMoney(in.TaxAmount),
			LineTotal:          lines[i].Total(),
			LineOrder:          i + 1,
		})
	}
	return items, shared.SumLines(lines), nil
}

// Update edits a pending sale through the allow-listed fields.
func (s *Service) Update(ctx context.Context, id int64, req UpdateSaleRequest) (*Sale, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.Invalid("%v", err)
	}
	var out *Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !sale.IsModifiable() {
			return &shared.ModificationNotAllowedError{Entity: "sale", ID: id, Status: string(sale.Status)}
		}

		details := SaleDetails{SaleDate: sale.SaleDate, DueDate: sale.DueDate, Notes: sale.Notes}
		if req.SaleDate != nil {
			details.SaleDate = *req.SaleDate
		}
		if req.DueDate != nil {
			details.DueDate = req.DueDate
		}
		if req.Notes != nil {
			details.Notes = *req.Notes
		}
		if details.DueDate != nil && details.DueDate.Before(truncateDay(details.SaleDate)) {
			return shared.Invalid("due date must not be before sale date")
		}
		if err := tx.UpdateSaleDetails(ctx, id, details); err != nil {
			return err
		}

		if len(req.Items) > 0 {
			if !sale.PaidAmount.IsZero() {
				return &shared.ModificationNotAllowedError{Entity: "sale", ID: id, Status: string(sale.Status), Reason: "payments allocated"}
			}
			items, totals, err := buildItems(ctx, tx, req.Items)
			if err != nil {
				return err
			}
			if err := tx.ReplaceSaleItems(ctx, id, items, totals); err != nil {
				return err
			}
			if err := s.moveCredit(ctx, tx, sale, totals.Total.Sub(sale.TotalAmount), "sale "+sale.Number+" amended"); err != nil {
				return err
			}
		}
		out, err = tx.GetSale(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("orders: update: %w", err)
	}
	return out, nil
}

// Transition changes the sale status. Cancelling releases the open balance
// from used credit; going overdue refreshes the customer's exposure.
func (s *Service) Transition(ctx context.Context, id int64, to Status) (*Sale, error) {
	var out *Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = s.transitionTx(ctx, tx, id, to)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("orders: transition: %w", err)
	}
	s.logger.Info("sale status changed", slog.Int64("sale_id", id), slog.String("status", string(to)))
	return out, nil
}

func (s *Service) transitionTx(ctx context.Context, tx TxRepository, id int64, to Status) (*Sale, error) {
	sale, err := tx.GetSaleForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(sale, to); err != nil {
		return nil, err
	}
	if err := tx.UpdateSaleStatus(ctx, id, sale.Status, to); err != nil {
		return nil, err
	}
	if to == StatusCancelled {
		if err := s.moveCredit(ctx, tx, sale, sale.BalanceAmount.Neg(), "sale "+sale.Number+" cancelled"); err != nil {
			return nil, err
		}
	}
	if s.credit != nil && (to == StatusCancelled || to == StatusOverdue) {
		if _, err := s.credit.RefreshTx(ctx, tx, sale.CustomerID); err != nil {
			return nil, err
		}
	}
	return tx.GetSale(ctx, id)
}

// moveCredit charges (delta > 0) or releases (delta < 0) used credit.
func (s *Service) moveCredit(ctx context.Context, tx TxRepository, sale *Sale, delta decimal.Decimal, reason string) error {
	if s.credit == nil || delta.IsZero() {
		return nil
	}
	direction := customers.DirectionAdd
	if delta.IsNegative() {
		direction = customers.DirectionSubtract
	}
	_, err := s.credit.ApplyTx(ctx, tx, credit.Movement{
		CustomerID:    sale.CustomerID,
		Amount:        delta.Abs(),
		Direction:     direction,
		Reason:        reason,
		ReferenceType: "sale",
		ReferenceID:   &sale.ID,
	})
	return err
}

// Delete removes a sale with no allocations that is not settled.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		sale, err := tx.GetSaleForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sale.PaymentStatus.IsSettled() {
			return &shared.DeletionBlockedError{Entity: "sale", ID: id, Reason: "sale is " + string(sale.PaymentStatus)}
		}
		n, err := tx.CountSaleAllocations(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return &shared.DeletionBlockedError{Entity: "sale", ID: id, Reason: fmt.Sprintf("%d payment allocations exist", n)}
		}
		if err := tx.DeleteSale(ctx, id); err != nil {
			return err
		}
		if sale.Status != StatusCancelled {
			if err := s.moveCredit(ctx, tx, sale, sale.BalanceAmount.Neg(), "sale "+sale.Number+" deleted"); err != nil {
				return err
			}
		}
		if s.credit != nil {
			_, err = s.credit.RefreshTx(ctx, tx, sale.CustomerID)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("orders: delete: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListSalesRequest) ([]Sale, int, error) {
	return s.repo.ListSales(ctx, req)
}

// SweepResult summarises a MarkOverdue run.
type SweepResult struct {
	Marked  int
	Skipped int
}

// MarkOverdue moves every sale past its due date with an open balance to
// overdue, one transaction per sale. Sales that changed since the candidate
// scan are skipped.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time, batch int) (SweepResult, error) {
	if batch <= 0 {
		batch = 500
	}
	ids, err := s.repo.ListOverdueCandidates(ctx, asOf, batch)
	if err != nil {
		return SweepResult{}, fmt.Errorf("orders: overdue candidates: %w", err)
	}
	var res SweepResult
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			sale, err := tx.GetSaleForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !IsOverdueCandidate(sale, asOf) {
				return errSkip
			}
			_, err = s.transitionTx(ctx, tx, id, StatusOverdue)
			return err
		})
		switch {
		case err == nil:
			res.Marked++
		case errors.Is(err, errSkip):
			res.Skipped++
		default:
			s.logger.Warn("mark sale overdue", slog.Int64("sale_id", id), slog.Any("error", err))
			res.Skipped++
		}
	}
	return res, nil
}

var errSkip = errors.New("orders: skip")

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
