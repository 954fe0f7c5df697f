package quotations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/lifecycle"
	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/numbering"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

var errNotExpired = errors.New("quotations: not expired")

type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validate: validator.New(), logger: logger, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Create(ctx context.Context, req CreateQuotationRequest) (*Quotation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.Invalid("%v", err)
	}
	quoteDate := req.QuoteDate
	if quoteDate.IsZero() {
		quoteDate = s.now()
	}
	if req.ValidUntil.Before(truncateDay(quoteDate)) {
		return nil, shared.Invalid("valid_until must not be before quote_date")
	}

	var out *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		customer, err := tx.GetCustomer(ctx, req.CustomerID)
		if err != nil {
			return err
		}
		if err := customer.EnsureActive(); err != nil {
			return err
		}
		lines, totals, err := buildLines(ctx, tx, req.Lines)
		if err != nil {
			return err
		}
		number, err := tx.NextNumber(ctx, numbering.PrefixQuotation, quoteDate)
		if err != nil {
			return err
		}
		q := &Quotation{
			Number:       number,
			CustomerID:   customer.ID,
			CustomerName: customer.Name,
			QuoteDate:    quoteDate,
			ValidUntil:   req.ValidUntil,
			Status:       QuotationStatusDraft,
			Notes:        req.Notes,
			CreatedBy:    shared.ActorFromContext(ctx),
			Lines:        lines,
		}
		q.applyTotals(totals)
		id, err := tx.InsertQuotation(ctx, q)
		if err != nil {
			return err
		}
		out, err = tx.GetQuotation(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("quotations: create: %w", err)
	}
	return out, nil
}

func buildLines(ctx context.Context, finder products.Finder, reqs []CreateQuotationLineReq) ([]QuotationLine, shared.Totals, error) {
	ids := make([]int64, len(reqs))
	amounts := make([]shared.LineAmount, len(reqs))
	for i, r := range reqs {
		amounts[i] = r.amount()
		if err := amounts[i].Validate(); err != nil {
			return nil, shared.Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		ids[i] = r.ProductID
	}
	catalog, err := products.Lookup(ctx, finder, ids)
	if err != nil {
		return nil, shared.Totals{}, err
	}
	lines := make([]QuotationLine, len(reqs))
	for i, r := range reqs {
		p := catalog[r.ProductID]
		lines[i] = QuotationLine{
			ProductID:          r.ProductID,
			ProductName:        p.Name,
			ProductSKU:         p.SKU,
			ProductDescription: p.Description,
			Quantity:           r.Quantity,
			UnitPrice:          r.UnitPrice,
			DiscountAmount:     shared.RoundMoney(r.DiscountAmount),
			TaxAmount:          shared.RoundMoney(r.TaxAmount),
			LineTotal:          amounts[i].Total(),
			LineOrder:          i + 1,
		}
	}
	return lines, shared.SumLines(amounts), nil
}

// Update edits a draft quotation.
func (s *Service) Update(ctx context.Context, id int64, req UpdateQuotationRequest) (*Quotation, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, shared.Invalid("%v", err)
	}
	var out *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if q.Status != QuotationStatusDraft {
			return &shared.ModificationNotAllowedError{Entity: "quotation", ID: id, Status: string(q.Status)}
		}
		details := QuotationDetails{QuoteDate: q.QuoteDate, ValidUntil: q.ValidUntil, Notes: q.Notes}
		if req.QuoteDate != nil {
			details.QuoteDate = *req.QuoteDate
		}
		if req.ValidUntil != nil {
			details.ValidUntil = *req.ValidUntil
		}
		if req.Notes != nil {
			details.Notes = *req.Notes
		}
		if details.ValidUntil.Before(truncateDay(details.QuoteDate)) {
			return shared.Invalid("valid_until must not be before quote_date")
		}
		if err := tx.UpdateQuotationDetails(ctx, id, details); err != nil {
			return err
		}
		if len(req.Lines) > 0 {
			lines, totals, err := buildLines(ctx, tx, req.Lines)
			if err != nil {
				return err
			}
			if err := tx.ReplaceQuotationLines(ctx, id, lines, totals); err != nil {
				return err
			}
		}
		out, err = tx.GetQuotation(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("quotations: update: %w", err)
	}
	return out, nil
}

// Transition changes the quotation status. Converting goes through the
// conversion workflow so a sale is always created alongside.
func (s *Service) Transition(ctx context.Context, id int64, to QuotationStatus) (*Quotation, error) {
	var out *Quotation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := lifecycle.Validate("quotation", q.Status, to, Transitions); err != nil {
			return err
		}
		if to == QuotationStatusConverted {
			return lifecycle.Reject("quotation", q.Status, to, "use the convert operation")
		}
		if err := tx.UpdateQuotationStatus(ctx, id, q.Status, to); err != nil {
			return err
		}
		out, err = tx.GetQuotation(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("quotations: transition: %w", err)
	}
	return out, nil
}

// Delete removes a quotation that has not been converted.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if q.Status == QuotationStatusConverted {
			return &shared.DeletionBlockedError{Entity: "quotation", ID: id, Reason: "quotation was converted to a sale"}
		}
		return tx.DeleteQuotation(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("quotations: delete: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*Quotation, error) {
	return s.repo.GetQuotation(ctx, id)
}

func (s *Service) List(ctx context.Context, req ListQuotationsRequest) ([]Quotation, int, error) {
	return s.repo.ListQuotations(ctx, req)
}

// ExpireDue moves sent quotations past their validity date to expired and
// returns how many changed.
func (s *Service) ExpireDue(ctx context.Context, asOf time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	ids, err := s.repo.ListExpiredCandidates(ctx, asOf, batch)
	if err != nil {
		return 0, fmt.Errorf("quotations: list expired: %w", err)
	}
	expired := 0
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			q, err := tx.GetQuotationForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !q.IsExpiredAt(asOf) {
				return errNotExpired
			}
			return tx.UpdateQuotationStatus(ctx, id, q.Status, QuotationStatusExpired)
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, errNotExpired):
		default:
			s.logger.Warn("expire quotation", slog.Int64("quotation_id", id), slog.Any("error", err))
		}
	}
	return expired, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
