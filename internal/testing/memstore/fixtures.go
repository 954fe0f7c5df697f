package memstore

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
)

// SeedCustomer adds an active customer with a good credit standing.
func (s *Store) SeedCustomer(code string, limit decimal.Decimal, termsDays int) int64 {
	id, err := s.CreateCustomer(context.Background(), customers.Customer{
		Code:             code,
		Name:             "Customer " + code,
		Status:           customers.StatusActive,
		PaymentTermsDays: termsDays,
		CreditLimit:      limit,
		UsedCredit:       decimal.Zero,
		AvailableCredit:  limit,
		OverdueAmount:    decimal.Zero,
		TotalOutstanding: decimal.Zero,
		CreditStatus:     customers.CreditGood,
	})
	if err != nil {
		panic(fmt.Sprintf("memstore: seed customer %s: %v", code, err))
	}
	return id
}

// SeedProduct adds an active catalog product.
func (s *Store) SeedProduct(sku string, price decimal.Decimal) int64 {
	id, err := s.CreateProduct(context.Background(), &products.Product{
		SKU:         sku,
		Name:        "Product " + sku,
		Description: sku + " description",
		Price:       price,
		IsActive:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("memstore: seed product %s: %v", sku, err))
	}
	return id
}

// SeedSupplier adds an active supplier.
func (s *Store) SeedSupplier(code string) int64 {
	id, err := s.CreateSupplier(context.Background(), &suppliers.Supplier{
		Code:   code,
		Name:   "Supplier " + code,
		Status: suppliers.StatusActive,
	})
	if err != nil {
		panic(fmt.Sprintf("memstore: seed supplier %s: %v", code, err))
	}
	return id
}

// SetCustomerStatus overwrites a customer's account status.
func (s *Store) SetCustomerStatus(id int64, status customers.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.data.customers[id]
	c.Status = status
	s.data.customers[id] = c
}

// SetSaleTotal overwrites a sale's total and leaves its allocations alone,
// the way a manual correction in the database would.
func (s *Store) SetSaleTotal(id int64, total decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale := s.data.sales[id]
	sale.TotalAmount = total
	s.data.sales[id] = sale
}
