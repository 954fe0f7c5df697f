// Package conversion turns an accepted quotation into a sale.
package conversion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/backoffice/internal/lifecycle"
	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/sales/orders"
	"github.com/odyssey-erp/backoffice/internal/sales/quotations"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// Service runs the conversion in a single transaction: the sale, its items,
// the credit movement and the quotation status commit together or not at all.
type Service struct {
	repo   Repository
	sales  *orders.Service
	logger *slog.Logger
}

func NewService(repo Repository, sales *orders.Service, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, sales: sales, logger: logger}
}

// ConvertQuotation creates a sale from an accepted quotation and marks the
// quotation converted.
func (s *Service) ConvertQuotation(ctx context.Context, quotationID int64) (*orders.Sale, error) {
	var sale *orders.Sale
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.GetQuotationForUpdate(ctx, quotationID)
		if err != nil {
			return err
		}
		if err := lifecycle.Validate("quotation", q.Status, quotations.QuotationStatusConverted, quotations.Transitions); err != nil {
			return err
		}
		if len(q.Lines) == 0 {
			return shared.Invalid("quotation %d has no lines", quotationID)
		}

		sale, err = s.sales.CreateTx(ctx, tx, saleFromQuotation(q))
		if err != nil {
			return fmt.Errorf("create sale: %w", err)
		}
		if !sale.TotalAmount.Equal(q.TotalAmount) {
			return fmt.Errorf("sale total %s does not match quotation total %s",
				sale.TotalAmount.StringFixed(2), q.TotalAmount.StringFixed(2))
		}
		if err := tx.MarkQuotationConverted(ctx, q.ID, sale.ID); err != nil {
			return err
		}
		return tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  shared.ActorFromContext(ctx),
			Action:   "quotation.converted",
			Entity:   "quotation",
			EntityID: q.ID,
			Meta:     map[string]any{"sale_id": sale.ID, "sale_number": sale.Number},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("conversion: quotation %d: %w", quotationID, err)
	}
	s.logger.Info("quotation converted",
		slog.Int64("quotation_id", quotationID),
		slog.Int64("sale_id", sale.ID),
		slog.String("sale_number", sale.Number))
	return sale, nil
}

func saleFromQuotation(q *quotations.Quotation) orders.CreateSaleRequest {
	due := q.ValidUntil
	items := make([]orders.ItemInput, len(q.Lines))
	for i, l := range q.Lines {
		items[i] = orders.ItemInput{
			ProductID:      l.ProductID,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
			DiscountAmount: l.DiscountAmount,
			TaxAmount:      l.TaxAmount,
			Snapshot:       &products.Snapshot{Name: l.ProductName, SKU: l.ProductSKU, Description: l.ProductDescription},
		}
	}
	return orders.CreateSaleRequest{
		CustomerID:  q.CustomerID,
		DueDate:     &due,
		Notes:       q.Notes,
		Items:       items,
		QuotationID: &q.ID,
	}
}
