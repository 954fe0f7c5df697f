package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/app"
	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/payments"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/sales/quotations"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

// seed loads a small demo data set through the services so that credit
// history, numbering, and ledger invariants hold for every row it writes.
func main() {
	ctx := context.Background()
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	rt, err := app.Open(ctx, cfg, app.NewLogger(cfg))
	if err != nil {
		log.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	svc := rt.BuildServices()

	fmt.Println("→ Seeding master data...")
	ids, err := seedMasterData(ctx, svc)
	if err != nil {
		log.Fatalf("seed master data: %v", err)
	}

	fmt.Println("→ Seeding sales...")
	if err := seedSales(ctx, svc, ids); err != nil {
		log.Fatalf("seed sales: %v", err)
	}

	fmt.Println("→ Seeding procurement...")
	if err := seedProcurement(ctx, svc, ids); err != nil {
		log.Fatalf("seed procurement: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

type seeded struct {
	customers map[string]int64
	products  map[string]int64
	suppliers map[string]int64
}

func money(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// =============================================================================
// MASTER DATA
// =============================================================================

func seedMasterData(ctx context.Context, svc *app.Services) (*seeded, error) {
	out := &seeded{customers: map[string]int64{}, products: map[string]int64{}, suppliers: map[string]int64{}}

	for _, c := range []customers.CreateCustomerRequest{
		{Code: "CUST-001", Name: "Harbor Retail", Email: "ap@harbor.example", PaymentTermsDays: 30, CreditLimit: money("25000")},
		{Code: "CUST-002", Name: "Northwind Cafe", PaymentTermsDays: 14, CreditLimit: money("5000")},
		{Code: "CUST-003", Name: "Walk-in Counter"},
	} {
		created, err := svc.Customers.Create(ctx, c)
		if errors.Is(err, shared.ErrConflict) {
			return nil, fmt.Errorf("customer %s already exists, database was seeded before: %w", c.Code, err)
		}
		if err != nil {
			return nil, err
		}
		out.customers[c.Code] = created.ID
	}

	for _, p := range []products.ProductInput{
		{SKU: "BEAN-1KG", Name: "Coffee beans 1kg", Price: money("18.50")},
		{SKU: "MILK-1L", Name: "Oat milk 1L", Price: money("2.40")},
		{SKU: "CUP-12OZ", Name: "Paper cup 12oz (50)", Price: money("6.00")},
	} {
		created, err := svc.Products.Create(ctx, p)
		if err != nil {
			return nil, err
		}
		out.products[p.SKU] = created.ID
	}

	for _, s := range []suppliers.SupplierInput{
		{Code: "SUP-001", Name: "Highland Roasters", Email: "orders@highland.example"},
		{Code: "SUP-002", Name: "Dairy Alternatives Co"},
	} {
		created, err := svc.Suppliers.Create(ctx, s)
		if err != nil {
			return nil, err
		}
		out.suppliers[s.Code] = created.ID
	}
	return out, nil
}

// =============================================================================
// SALES
// =============================================================================

func seedSales(ctx context.Context, svc *app.Services, ids *seeded) error {
	q, err := svc.Quotations.Create(ctx, quotations.CreateQuotationRequest{
		CustomerID: ids.customers["CUST-001"],
		ValidUntil: time.Now().AddDate(0, 0, 30),
		Notes:      "monthly supply",
		Lines: []quotations.CreateQuotationLineReq{
			{ProductID: ids.products["BEAN-1KG"], Quantity: money("40"), UnitPrice: money("18.50")},
			{ProductID: ids.products["CUP-12OZ"], Quantity: money("20"), UnitPrice: money("6.00"), DiscountAmount: money("10")},
		},
	})
	if err != nil {
		return fmt.Errorf("quotation: %w", err)
	}
	for _, to := range []quotations.QuotationStatus{quotations.QuotationStatusSent, quotations.QuotationStatusAccepted} {
		if _, err := svc.Quotations.Transition(ctx, q.ID, to); err != nil {
			return fmt.Errorf("quotation %s: %w", to, err)
		}
	}
	sale, err := svc.Conversion.ConvertQuotation(ctx, q.ID)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	_, err = svc.Payments.CreatePayment(ctx, payments.CreatePaymentRequest{
		PartyType:      payments.PartyCustomer,
		PartyID:        ids.customers["CUST-001"],
		Amount:         money("500"),
		Method:         "bank_transfer",
		Reference:      "SEED-DEPOSIT",
		IdempotencyKey: "seed-" + sale.Number,
		Allocations: []payments.AllocationRequest{
			{OrderType: payments.OrderSale, OrderID: sale.ID, Amount: money("500")},
		},
	})
	if err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	return nil
}

// =============================================================================
// PROCUREMENT
// =============================================================================

func seedProcurement(ctx context.Context, svc *app.Services, ids *seeded) error {
	p, err := svc.Procurement.Create(ctx, procurement.CreatePurchaseRequest{
		SupplierID: ids.suppliers["SUP-001"],
		Items: []procurement.ItemInput{
			{ProductID: ids.products["BEAN-1KG"], Quantity: money("100"), UnitCost: money("11.20")},
		},
	})
	if err != nil {
		return err
	}
	_, err = svc.Procurement.Transition(ctx, p.ID, procurement.StatusOrdered)
	return err
}
