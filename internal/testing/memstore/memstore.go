// Package memstore is an in-memory implementation of every repository port,
// used by service and handler tests. Transactions are serialised and roll
// back to a snapshot when the callback returns an error.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/credit"
	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/numbering"
	"github.com/odyssey-erp/backoffice/internal/payments"
	"github.com/odyssey-erp/backoffice/internal/procurement"
	"github.com/odyssey-erp/backoffice/internal/sales/conversion"
	"github.com/odyssey-erp/backoffice/internal/sales/customers"
	"github.com/odyssey-erp/backoffice/internal/sales/orders"
	"github.com/odyssey-erp/backoffice/internal/sales/quotations"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type state struct {
	nextID      int64
	customers   map[int64]customers.Customer
	history     []customers.CreditHistoryEntry
	products    map[int64]products.Product
	suppliers   map[int64]suppliers.Supplier
	sales       map[int64]orders.Sale
	purchases   map[int64]procurement.Purchase
	quotations  map[int64]quotations.Quotation
	payments    map[int64]payments.Payment
	allocations []payments.Allocation
	sequences   map[string]int64
	keys        map[string]time.Time
	audit       []shared.AuditLog
}

func newState() state {
	return state{
		customers:  map[int64]customers.Customer{},
		products:   map[int64]products.Product{},
		suppliers:  map[int64]suppliers.Supplier{},
		sales:      map[int64]orders.Sale{},
		purchases:  map[int64]procurement.Purchase{},
		quotations: map[int64]quotations.Quotation{},
		payments:   map[int64]payments.Payment{},
		sequences:  map[string]int64{},
		keys:       map[string]time.Time{},
	}
}

func (s state) clone() state {
	out := newState()
	out.nextID = s.nextID
	for k, v := range s.customers {
		out.customers[k] = v
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.suppliers {
		out.suppliers[k] = v
	}
	for k, v := range s.sales {
		v.Items = slices.Clone(v.Items)
		out.sales[k] = v
	}
	for k, v := range s.purchases {
		v.Items = slices.Clone(v.Items)
		out.purchases[k] = v
	}
	for k, v := range s.quotations {
		v.Lines = slices.Clone(v.Lines)
		out.quotations[k] = v
	}
	for k, v := range s.payments {
		out.payments[k] = v
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	for k, v := range s.keys {
		out.keys[k] = v
	}
	out.history = slices.Clone(s.history)
	out.allocations = slices.Clone(s.allocations)
	out.audit = slices.Clone(s.audit)
	return out
}

// Store holds all rows in memory.
type Store struct {
	txMu   sync.Mutex
	mu     sync.Mutex
	data   state
	faults map[string]error
	now    func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newState(), faults: map[string]error{}, now: time.Now}
}

// WithClock overrides the time used for created_at and updated_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// FailOnce makes the next call of method return err.
func (s *Store) FailOnce(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[method] = err
}

// fault must be called with mu held.
func (s *Store) fault(method string) error {
	if err, ok := s.faults[method]; ok {
		delete(s.faults, method)
		return err
	}
	return nil
}

func (s *Store) withTx(fn func() error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) id() int64 {
	s.data.nextID++
	return s.data.nextID
}

func notFound(entity string, id any) error {
	return &shared.NotFoundError{Entity: entity, ID: id}
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", shared.ErrConflict, fmt.Sprintf(format, args...))
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func matches(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func page[T any](rows []T, limit, offset int) []T {
	if limit <= 0 {
		limit = 20
	}
	if offset >= len(rows) {
		return nil
	}
	end := min(offset+limit, len(rows))
	return rows[offset:end]
}

// Repository adapters. Each wraps the store with the WithTx signature of
// one service package.

// Customers returns the customers.Repository view.
func (s *Store) Customers() customers.Repository { return customerRepo{s} }

// Credit returns the credit.Repository view.
func (s *Store) Credit() credit.Repository { return creditRepo{s} }

// Sales returns the orders.Repository view.
func (s *Store) Sales() orders.Repository { return salesRepo{s} }

// Quotations returns the quotations.Repository view.
func (s *Store) Quotations() quotations.Repository { return quotationRepo{s} }

// Conversion returns the conversion.Repository view.
func (s *Store) Conversion() conversion.Repository { return conversionRepo{s} }

// Procurement returns the procurement.Repository view.
func (s *Store) Procurement() procurement.Repository { return procurementRepo{s} }

// Payments returns the payments.Repository view.
func (s *Store) Payments() payments.Repository { return paymentRepo{s} }

type customerRepo struct{ *Store }

func (r customerRepo) WithTx(ctx context.Context, fn func(context.Context, customers.Repository) error) error {
	return r.withTx(func() error { return fn(ctx, r) })
}

type creditRepo struct{ *Store }

func (r creditRepo) WithTx(ctx context.Context, fn func(context.Context, credit.Store) error) error {
	return r.withTx(func() error { return fn(ctx, r.Store) })
}

type salesRepo struct{ *Store }

func (r salesRepo) WithTx(ctx context.Context, fn func(context.Context, orders.TxRepository) error) error {
	return r.withTx(func() error { return fn(ctx, r.Store) })
}

type quotationRepo struct{ *Store }

func (r quotationRepo) WithTx(ctx context.Context, fn func(context.Context, quotations.TxRepository) error) error {
	return r.withTx(func() error { return fn(ctx, r.Store) })
}

type conversionRepo struct{ *Store }

func (r conversionRepo) WithTx(ctx context.Context, fn func(context.Context, conversion.TxRepository) error) error {
	return r.withTx(func() error { return fn(ctx, r.Store) })
}

type procurementRepo struct{ *Store }

func (r procurementRepo) WithTx(ctx context.Context, fn func(context.Context, procurement.TxRepository) error) error {
	return r.withTx(func() error { return fn(ctx, r.Store) })
}

type paymentRepo struct{ *Store }

func (r paymentRepo) WithTx(ctx context.Context, fn func(context.Context, payments.TxRepository) error) error {
	return r.withTx(func() error { return fn(ctx, r.Store) })
}

// Numbering, idempotency and audit.

func (s *Store) NextNumber(_ context.Context, prefix string, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", shared.Invalid("number prefix required")
	}
	key := prefix + "/" + numbering.Period(at)
	s.data.sequences[key]++
	return numbering.Format(prefix, at, s.data.sequences[key]), nil
}

func (s *Store) ClaimIdempotencyKey(_ context.Context, key, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" || scope == "" {
		return shared.Invalid("idempotency key and scope required")
	}
	k := scope + "|" + key
	if _, ok := s.data.keys[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	s.data.keys[k] = s.now()
	return nil
}

func (s *Store) PurgeIdempotencyKeys(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-olderThan)
	var n int64
	for k, at := range s.data.keys {
		if at.Before(cutoff) {
			delete(s.data.keys, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) RecordAudit(_ context.Context, log shared.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("RecordAudit"); err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = s.now()
	}
	s.data.audit = append(s.data.audit, log)
	return nil
}

// AuditLogs returns the recorded audit entries in insertion order.
func (s *Store) AuditLogs() []shared.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.audit)
}

// IdempotencyKeys counts the stored keys.
func (s *Store) IdempotencyKeys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.keys)
}

// Customers and credit.

func (s *Store) GetCustomer(_ context.Context, id int64) (*customers.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.customers[id]
	if !ok {
		return nil, notFound("customer", id)
	}
	return &c, nil
}

func (s *Store) GetCustomerForUpdate(ctx context.Context, id int64) (*customers.Customer, error) {
	return s.GetCustomer(ctx, id)
}

func (s *Store) GetCustomerByCode(_ context.Context, code string) (*customers.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.data.customers {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, notFound("customer", code)
}

func (s *Store) ListCustomers(_ context.Context, req customers.ListCustomersRequest) ([]customers.Customer, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []customers.Customer
	for _, c := range s.data.customers {
		if req.Status != "" && c.Status != req.Status {
			continue
		}
		if req.CreditStatus != "" && c.CreditStatus != req.CreditStatus {
			continue
		}
		if !matches(req.Search, c.Name, c.Code) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, req.Limit, req.Offset), len(out), nil
}

func (s *Store) CreateCustomer(_ context.Context, c customers.Customer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.customers {
		if existing.Code == c.Code {
			return 0, conflict("duplicate customer code %s", c.Code)
		}
	}
	c.ID = s.id()
	c.CreatedAt, c.UpdatedAt = s.now(), s.now()
	s.data.customers[c.ID] = c
	return c.ID, nil
}

func (s *Store) UpdateCustomer(_ context.Context, id int64, req customers.UpdateCustomerRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data.customers[id]
	if !ok {
		return notFound("customer", id)
	}
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Email != nil {
		c.Email = *req.Email
	}
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.Address != nil {
		c.Address = *req.Address
	}
	if req.PaymentTermsDays != nil {
		c.PaymentTermsDays = *req.PaymentTermsDays
	}
	if req.Active != nil {
		c.Status = customers.StatusInactive
		if *req.Active {
			c.Status = customers.StatusActive
		}
	}
	c.UpdatedAt = s.now()
	s.data.customers[id] = c
	return nil
}

func (s *Store) DeleteCustomer(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.customers, id)
	return nil
}

func (s *Store) CountCustomerDependents(_ context.Context, id int64) (customers.Dependents, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var d customers.Dependents
	for _, sale := range s.data.sales {
		if sale.CustomerID == id {
			d.Sales++
		}
	}
	for _, q := range s.data.quotations {
		if q.CustomerID == id {
			d.Quotations++
		}
	}
	for _, p := range s.data.payments {
		if p.PartyType == payments.PartyCustomer && p.PartyID == id {
			d.Payments++
		}
	}
	return d, nil
}

func (s *Store) SaveCustomerCredit(_ context.Context, c *customers.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("SaveCustomerCredit"); err != nil {
		return err
	}
	cur, ok := s.data.customers[c.ID]
	if !ok {
		return notFound("customer", c.ID)
	}
	cur.Status = c.Status
	cur.CreditLimit = c.CreditLimit
	cur.UsedCredit = c.UsedCredit
	cur.AvailableCredit = c.AvailableCredit
	cur.OverdueAmount = c.OverdueAmount
	cur.TotalOutstanding = c.TotalOutstanding
	cur.CreditStatus = c.CreditStatus
	cur.UpdatedAt = s.now()
	s.data.customers[c.ID] = cur
	return nil
}

func (s *Store) InsertCreditHistory(_ context.Context, e customers.CreditHistoryEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertCreditHistory"); err != nil {
		return 0, err
	}
	e.ID = s.id()
	e.CreatedAt = s.now()
	s.data.history = append(s.data.history, e)
	return e.ID, nil
}

func (s *Store) CustomerExposure(_ context.Context, customerID int64, asOf time.Time) (customers.Exposure, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := customers.Exposure{TotalOutstanding: decimal.Zero, OverdueAmount: decimal.Zero}
	for _, sale := range s.data.sales {
		if sale.CustomerID != customerID || sale.Status == orders.StatusCancelled || !sale.BalanceAmount.IsPositive() {
			continue
		}
		e.TotalOutstanding = e.TotalOutstanding.Add(sale.BalanceAmount)
		if sale.Status == orders.StatusOverdue || (sale.DueDate != nil && day(*sale.DueDate).Before(day(asOf))) {
			e.OverdueAmount = e.OverdueAmount.Add(sale.BalanceAmount)
		}
	}
	return e, nil
}

func (s *Store) ListCreditHistory(_ context.Context, customerID int64, limit, offset int) ([]customers.CreditHistoryEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []customers.CreditHistoryEntry
	for i := len(s.data.history) - 1; i >= 0; i-- {
		if s.data.history[i].CustomerID == customerID {
			out = append(out, s.data.history[i])
		}
	}
	return page(out, limit, offset), len(out), nil
}

func (s *Store) ListCustomerIDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	open := map[int64]bool{}
	for _, sale := range s.data.sales {
		if sale.BalanceAmount.IsPositive() && sale.Status != orders.StatusCancelled {
			open[sale.CustomerID] = true
		}
	}
	var ids []int64
	for id, c := range s.data.customers {
		if c.UsedCredit.IsPositive() || c.TotalOutstanding.IsPositive() || c.OverdueAmount.IsPositive() ||
			c.CreditStatus != customers.CreditGood || open[id] {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// CreditHistory returns every history entry of customerID, oldest first.
func (s *Store) CreditHistory(customerID int64) []customers.CreditHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []customers.CreditHistoryEntry
	for _, e := range s.data.history {
		if e.CustomerID == customerID {
			out = append(out, e)
		}
	}
	return out
}

// Products.

func (s *Store) FindProductsByIDs(_ context.Context, ids []int64) ([]products.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []products.Product
	for _, id := range ids {
		if p, ok := s.data.products[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*products.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	return &p, nil
}

func (s *Store) ListProducts(_ context.Context, f products.ListFilters) ([]products.Product, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []products.Product
	for _, p := range s.data.products {
		if f.IsActive != nil && p.IsActive != *f.IsActive {
			continue
		}
		if !matches(f.Search, p.Name, p.SKU) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (s *Store) CreateProduct(_ context.Context, p *products.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.products {
		if existing.SKU == p.SKU {
			return 0, conflict("duplicate product sku %s", p.SKU)
		}
	}
	row := *p
	row.ID = s.id()
	row.CreatedAt, row.UpdatedAt = s.now(), s.now()
	s.data.products[row.ID] = row
	return row.ID, nil
}

func (s *Store) UpdateProduct(_ context.Context, id int64, in products.ProductInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.products[id]
	if !ok {
		return notFound("product", id)
	}
	for _, existing := range s.data.products {
		if existing.ID != id && existing.SKU == in.SKU {
			return conflict("duplicate product sku %s", in.SKU)
		}
	}
	p.SKU, p.Name, p.Description, p.Price = in.SKU, in.Name, in.Description, in.Price
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	p.UpdatedAt = s.now()
	s.data.products[id] = p
	return nil
}

// Suppliers.

func (s *Store) GetSupplier(_ context.Context, id int64) (*suppliers.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.data.suppliers[id]
	if !ok {
		return nil, notFound("supplier", id)
	}
	return &sp, nil
}

func (s *Store) ListSuppliers(_ context.Context, f suppliers.ListFilters) ([]suppliers.Supplier, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []suppliers.Supplier
	for _, sp := range s.data.suppliers {
		if f.Status != "" && sp.Status != f.Status {
			continue
		}
		if !matches(f.Search, sp.Name, sp.Code) {
			continue
		}
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (s *Store) CreateSupplier(_ context.Context, sp *suppliers.Supplier) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.data.suppliers {
		if existing.Code == sp.Code {
			return 0, conflict("duplicate supplier code %s", sp.Code)
		}
	}
	row := *sp
	row.ID = s.id()
	row.CreatedAt, row.UpdatedAt = s.now(), s.now()
	s.data.suppliers[row.ID] = row
	return row.ID, nil
}

func (s *Store) UpdateSupplier(_ context.Context, id int64, in suppliers.SupplierInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.data.suppliers[id]
	if !ok {
		return notFound("supplier", id)
	}
	sp.Code, sp.Name, sp.Email, sp.Phone, sp.Address = in.Code, in.Name, in.Email, in.Phone, in.Address
	sp.UpdatedAt = s.now()
	s.data.suppliers[id] = sp
	return nil
}

func (s *Store) UpdateSupplierStatus(_ context.Context, id int64, status suppliers.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.data.suppliers[id]
	if !ok {
		return notFound("supplier", id)
	}
	sp.Status = status
	sp.UpdatedAt = s.now()
	s.data.suppliers[id] = sp
	return nil
}

// Sales.

func (s *Store) saleLocked(id int64) (*orders.Sale, error) {
	sale, ok := s.data.sales[id]
	if !ok {
		return nil, notFound("sale", id)
	}
	sale.Items = slices.Clone(sale.Items)
	if c, ok := s.data.customers[sale.CustomerID]; ok {
		sale.CustomerName = c.Name
	}
	return &sale, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*orders.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saleLocked(id)
}

func (s *Store) GetSaleForUpdate(ctx context.Context, id int64) (*orders.Sale, error) {
	return s.GetSale(ctx, id)
}

func (s *Store) InsertSale(_ context.Context, sale *orders.Sale) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertSale"); err != nil {
		return 0, err
	}
	for _, existing := range s.data.sales {
		if existing.Number == sale.Number {
			return 0, conflict("duplicate sale number %s", sale.Number)
		}
		if sale.QuotationID != nil && existing.QuotationID != nil && *existing.QuotationID == *sale.QuotationID {
			return 0, conflict("quotation %d already converted", *sale.QuotationID)
		}
	}
	row := *sale
	row.ID = s.id()
	row.CreatedAt, row.UpdatedAt = s.now(), s.now()
	row.Items = make([]orders.Item, len(sale.Items))
	for i, it := range sale.Items {
		it.ID = s.id()
		it.SaleID = row.ID
		row.Items[i] = it
	}
	s.data.sales[row.ID] = row
	return row.ID, nil
}

func (s *Store) UpdateSaleDetails(_ context.Context, id int64, d orders.SaleDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.data.sales[id]
	if !ok {
		return notFound("sale", id)
	}
	sale.SaleDate, sale.DueDate, sale.Notes = d.SaleDate, d.DueDate, d.Notes
	sale.UpdatedAt = s.now()
	s.data.sales[id] = sale
	return nil
}

func (s *Store) ReplaceSaleItems(_ context.Context, id int64, items []orders.Item, t shared.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.data.sales[id]
	if !ok || !sale.PaidAmount.IsZero() {
		return conflict("sale %d changed concurrently", id)
	}
	sale.Subtotal, sale.DiscountAmount, sale.TaxAmount, sale.TotalAmount = t.Subtotal, t.Discount, t.Tax, t.Total
	sale.BalanceAmount = t.Total
	sale.PaymentStatus = shared.PaymentUnpaid
	sale.Items = make([]orders.Item, len(items))
	for i, it := range items {
		it.ID = s.id()
		it.SaleID = id
		sale.Items[i] = it
	}
	sale.UpdatedAt = s.now()
	s.data.sales[id] = sale
	return nil
}

func (s *Store) UpdateSaleStatus(_ context.Context, id int64, from, to orders.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sale, ok := s.data.sales[id]
	if !ok || sale.Status != from {
		return conflict("sale %d is no longer %s", id, from)
	}
	sale.Status = to
	sale.UpdatedAt = s.now()
	s.data.sales[id] = sale
	return nil
}

func (s *Store) SetSaleBalance(_ context.Context, id int64, paid, balance decimal.Decimal, status shared.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("SetSaleBalance"); err != nil {
		return err
	}
	sale, ok := s.data.sales[id]
	if !ok {
		return notFound("sale", id)
	}
	sale.PaidAmount, sale.BalanceAmount, sale.PaymentStatus = paid, balance, status
	sale.UpdatedAt = s.now()
	s.data.sales[id] = sale
	return nil
}

func (s *Store) DeleteSale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.sales, id)
	for qid, q := range s.data.quotations {
		if q.ConvertedSaleID != nil && *q.ConvertedSaleID == id {
			q.ConvertedSaleID = nil
			s.data.quotations[qid] = q
		}
	}
	return nil
}

func (s *Store) CountSaleAllocations(_ context.Context, id int64) (int, error) {
	return s.countAllocations(payments.OrderRef{Type: payments.OrderSale, ID: id}), nil
}

func (s *Store) ListSales(_ context.Context, req orders.ListSalesRequest) ([]orders.Sale, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Sale
	for id := range s.data.sales {
		sale, _ := s.saleLocked(id)
		if req.CustomerID != nil && sale.CustomerID != *req.CustomerID {
			continue
		}
		if req.Status != "" && sale.Status != req.Status {
			continue
		}
		if req.PaymentStatus != "" && sale.PaymentStatus != req.PaymentStatus {
			continue
		}
		if req.DateFrom != nil && sale.SaleDate.Before(*req.DateFrom) {
			continue
		}
		if req.DateTo != nil && sale.SaleDate.After(*req.DateTo) {
			continue
		}
		if !matches(req.Search, sale.Number, sale.CustomerName) {
			continue
		}
		sale.Items = nil
		out = append(out, *sale)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SaleDate.Equal(out[j].SaleDate) {
			return out[i].SaleDate.After(out[j].SaleDate)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, req.Limit, req.Offset), len(out), nil
}

func (s *Store) ListOverdueCandidates(_ context.Context, asOf time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []orders.Sale
	for _, sale := range s.data.sales {
		if sale.DueDate == nil || !day(*sale.DueDate).Before(day(asOf)) || !sale.BalanceAmount.IsPositive() {
			continue
		}
		switch sale.Status {
		case orders.StatusPending, orders.StatusConfirmed, orders.StatusDelivered:
			due = append(due, sale)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].DueDate.Equal(*due[j].DueDate) {
			return due[i].DueDate.Before(*due[j].DueDate)
		}
		return due[i].ID < due[j].ID
	})
	var ids []int64
	for _, sale := range due {
		if len(ids) == limit {
			break
		}
		ids = append(ids, sale.ID)
	}
	return ids, nil
}

// Quotations.

func (s *Store) GetQuotation(_ context.Context, id int64) (*quotations.Quotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.data.quotations[id]
	if !ok {
		return nil, notFound("quotation", id)
	}
	q.Lines = slices.Clone(q.Lines)
	if c, ok := s.data.customers[q.CustomerID]; ok {
		q.CustomerName = c.Name
	}
	return &q, nil
}

func (s *Store) GetQuotationForUpdate(ctx context.Context, id int64) (*quotations.Quotation, error) {
	return s.GetQuotation(ctx, id)
}

func (s *Store) InsertQuotation(_ context.Context, q *quotations.Quotation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := *q
	row.ID = s.id()
	row.CreatedAt, row.UpdatedAt = s.now(), s.now()
	row.Lines = make([]quotations.QuotationLine, len(q.Lines))
	for i, l := range q.Lines {
		l.ID = s.id()
		l.QuotationID = row.ID
		row.Lines[i] = l
	}
	s.data.quotations[row.ID] = row
	return row.ID, nil
}

func (s *Store) UpdateQuotationDetails(_ context.Context, id int64, d quotations.QuotationDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.data.quotations[id]
	if !ok {
		return notFound("quotation", id)
	}
	q.QuoteDate, q.ValidUntil, q.Notes = d.QuoteDate, d.ValidUntil, d.Notes
	q.UpdatedAt = s.now()
	s.data.quotations[id] = q
	return nil
}

func (s *Store) ReplaceQuotationLines(_ context.Context, id int64, lines []quotations.QuotationLine, t shared.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.data.quotations[id]
	if !ok {
		return notFound("quotation", id)
	}
	q.Subtotal, q.DiscountAmount, q.TaxAmount, q.TotalAmount = t.Subtotal, t.Discount, t.Tax, t.Total
	q.Lines = make([]quotations.QuotationLine, len(lines))
	for i, l := range lines {
		l.ID = s.id()
		l.QuotationID = id
		q.Lines[i] = l
	}
	q.UpdatedAt = s.now()
	s.data.quotations[id] = q
	return nil
}

func (s *Store) UpdateQuotationStatus(_ context.Context, id int64, from, to quotations.QuotationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.data.quotations[id]
	if !ok || q.Status != from {
		return conflict("quotation %d is no longer %s", id, from)
	}
	q.Status = to
	q.UpdatedAt = s.now()
	s.data.quotations[id] = q
	return nil
}

func (s *Store) MarkQuotationConverted(_ context.Context, id, saleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("MarkQuotationConverted"); err != nil {
		return err
	}
	q, ok := s.data.quotations[id]
	if !ok || q.Status != quotations.QuotationStatusAccepted {
		return conflict("quotation %d is no longer accepted", id)
	}
	q.Status = quotations.QuotationStatusConverted
	q.ConvertedSaleID = &saleID
	q.UpdatedAt = s.now()
	s.data.quotations[id] = q
	return nil
}

func (s *Store) DeleteQuotation(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.quotations, id)
	for sid, sale := range s.data.sales {
		if sale.QuotationID != nil && *sale.QuotationID == id {
			sale.QuotationID = nil
			s.data.sales[sid] = sale
		}
	}
	return nil
}

func (s *Store) ListQuotations(_ context.Context, req quotations.ListQuotationsRequest) ([]quotations.Quotation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []quotations.Quotation
	for _, q := range s.data.quotations {
		if req.CustomerID != nil && q.CustomerID != *req.CustomerID {
			continue
		}
		if req.Status != "" && q.Status != req.Status {
			continue
		}
		if req.DateFrom != nil && q.QuoteDate.Before(*req.DateFrom) {
			continue
		}
		if req.DateTo != nil && q.QuoteDate.After(*req.DateTo) {
			continue
		}
		name := s.data.customers[q.CustomerID].Name
		if !matches(req.Search, q.Number, name) {
			continue
		}
		q.CustomerName = name
		q.Lines = nil
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].QuoteDate.Equal(out[j].QuoteDate) {
			return out[i].QuoteDate.After(out[j].QuoteDate)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, req.Limit, req.Offset), len(out), nil
}

func (s *Store) ListExpiredCandidates(_ context.Context, asOf time.Time, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, q := range s.data.quotations {
		if q.Status == quotations.QuotationStatusSent && day(q.ValidUntil).Before(day(asOf)) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// Purchases.

func (s *Store) GetPurchase(_ context.Context, id int64) (*procurement.Purchase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.purchases[id]
	if !ok {
		return nil, notFound("purchase", id)
	}
	p.Items = slices.Clone(p.Items)
	if sp, ok := s.data.suppliers[p.SupplierID]; ok {
		p.SupplierName = sp.Name
	}
	return &p, nil
}

func (s *Store) GetPurchaseForUpdate(ctx context.Context, id int64) (*procurement.Purchase, error) {
	return s.GetPurchase(ctx, id)
}

func (s *Store) InsertPurchase(_ context.Context, p *procurement.Purchase) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := *p
	row.ID = s.id()
	row.CreatedAt, row.UpdatedAt = s.now(), s.now()
	row.Items = make([]procurement.Item, len(p.Items))
	for i, it := range p.Items {
		it.ID = s.id()
		it.PurchaseID = row.ID
		row.Items[i] = it
	}
	s.data.purchases[row.ID] = row
	return row.ID, nil
}

func (s *Store) UpdatePurchaseDetails(_ context.Context, id int64, d procurement.PurchaseDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.purchases[id]
	if !ok {
		return notFound("purchase", id)
	}
	p.PurchaseDate, p.ExpectedDate, p.Notes = d.PurchaseDate, d.ExpectedDate, d.Notes
	p.UpdatedAt = s.now()
	s.data.purchases[id] = p
	return nil
}

func (s *Store) ReplacePurchaseItems(_ context.Context, id int64, items []procurement.Item, t shared.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.purchases[id]
	if !ok || !p.PaidAmount.IsZero() {
		return conflict("purchase %d changed concurrently", id)
	}
	p.Subtotal, p.DiscountAmount, p.TaxAmount, p.TotalAmount = t.Subtotal, t.Discount, t.Tax, t.Total
	p.BalanceAmount = t.Total
	p.PaymentStatus = shared.PaymentUnpaid
	p.Items = make([]procurement.Item, len(items))
	for i, it := range items {
		it.ID = s.id()
		it.PurchaseID = id
		p.Items[i] = it
	}
	p.UpdatedAt = s.now()
	s.data.purchases[id] = p
	return nil
}

func (s *Store) UpdatePurchaseStatus(_ context.Context, id int64, from, to procurement.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.purchases[id]
	if !ok || p.Status != from {
		return conflict("purchase %d is no longer %s", id, from)
	}
	p.Status = to
	p.UpdatedAt = s.now()
	s.data.purchases[id] = p
	return nil
}

func (s *Store) SetPurchaseBalance(_ context.Context, id int64, paid, balance decimal.Decimal, status shared.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.purchases[id]
	if !ok {
		return notFound("purchase", id)
	}
	p.PaidAmount, p.BalanceAmount, p.PaymentStatus = paid, balance, status
	p.UpdatedAt = s.now()
	s.data.purchases[id] = p
	return nil
}

func (s *Store) DeletePurchase(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.purchases, id)
	return nil
}

func (s *Store) CountPurchaseAllocations(_ context.Context, id int64) (int, error) {
	return s.countAllocations(payments.OrderRef{Type: payments.OrderPurchase, ID: id}), nil
}

func (s *Store) ListPurchases(_ context.Context, req procurement.ListPurchasesRequest) ([]procurement.Purchase, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []procurement.Purchase
	for _, p := range s.data.purchases {
		if req.SupplierID != nil && p.SupplierID != *req.SupplierID {
			continue
		}
		if req.Status != "" && p.Status != req.Status {
			continue
		}
		if req.PaymentStatus != "" && p.PaymentStatus != req.PaymentStatus {
			continue
		}
		if req.DateFrom != nil && p.PurchaseDate.Before(*req.DateFrom) {
			continue
		}
		if req.DateTo != nil && p.PurchaseDate.After(*req.DateTo) {
			continue
		}
		name := s.data.suppliers[p.SupplierID].Name
		if !matches(req.Search, p.Number, name) {
			continue
		}
		p.SupplierName = name
		p.Items = nil
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchaseDate.Equal(out[j].PurchaseDate) {
			return out[i].PurchaseDate.After(out[j].PurchaseDate)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, req.Limit, req.Offset), len(out), nil
}

// Payments.

func (s *Store) paymentLocked(id int64) (*payments.Payment, error) {
	p, ok := s.data.payments[id]
	if !ok {
		return nil, notFound("payment", id)
	}
	p.PartyName = s.partyName(p.PartyType, p.PartyID)
	p.Allocations = nil
	for _, a := range s.data.allocations {
		if a.PaymentID == id {
			p.Allocations = append(p.Allocations, a)
		}
	}
	return &p, nil
}

func (s *Store) partyName(t payments.PartyType, id int64) string {
	if t == payments.PartySupplier {
		return s.data.suppliers[id].Name
	}
	return s.data.customers[id].Name
}

func (s *Store) GetPayment(_ context.Context, id int64) (*payments.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paymentLocked(id)
}

func (s *Store) GetPaymentForUpdate(ctx context.Context, id int64) (*payments.Payment, error) {
	return s.GetPayment(ctx, id)
}

func (s *Store) InsertPayment(_ context.Context, p *payments.Payment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertPayment"); err != nil {
		return 0, err
	}
	row := *p
	row.ID = s.id()
	row.Allocations = nil
	row.CreatedAt, row.UpdatedAt = s.now(), s.now()
	s.data.payments[row.ID] = row
	return row.ID, nil
}

func (s *Store) InsertAllocation(_ context.Context, a payments.Allocation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertAllocation"); err != nil {
		return 0, err
	}
	if _, ok := s.data.payments[a.PaymentID]; !ok {
		return 0, notFound("payment", a.PaymentID)
	}
	a.ID = s.id()
	a.CreatedAt = s.now()
	s.data.allocations = append(s.data.allocations, a)
	return a.ID, nil
}

func (s *Store) DeletePaymentAllocations(_ context.Context, paymentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.allocations = slices.DeleteFunc(s.data.allocations, func(a payments.Allocation) bool {
		return a.PaymentID == paymentID
	})
	return nil
}

func (s *Store) SetPaymentAllocation(_ context.Context, id int64, allocated, unallocated decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.payments[id]
	if !ok {
		return notFound("payment", id)
	}
	p.AllocatedAmount, p.UnallocatedAmount = allocated, unallocated
	p.UpdatedAt = s.now()
	s.data.payments[id] = p
	return nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, id int64, from, to payments.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.data.payments[id]
	if !ok || p.Status != from {
		return conflict("payment %d is no longer %s", id, from)
	}
	p.Status = to
	p.UpdatedAt = s.now()
	s.data.payments[id] = p
	return nil
}

func (s *Store) DeletePayment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.payments, id)
	s.data.allocations = slices.DeleteFunc(s.data.allocations, func(a payments.Allocation) bool {
		return a.PaymentID == id
	})
	return nil
}

func (s *Store) SumOrderAllocations(_ context.Context, ref payments.OrderRef) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, a := range s.data.allocations {
		if a.OrderType == ref.Type && a.OrderID == ref.ID {
			sum = sum.Add(a.Amount)
		}
	}
	return sum, nil
}

func (s *Store) countAllocations(ref payments.OrderRef) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.data.allocations {
		if a.OrderType == ref.Type && a.OrderID == ref.ID {
			n++
		}
	}
	return n
}

func (s *Store) ListOrderAllocations(_ context.Context, ref payments.OrderRef) ([]payments.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []payments.Allocation
	for _, a := range s.data.allocations {
		if a.OrderType == ref.Type && a.OrderID == ref.ID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) ListPayments(_ context.Context, req payments.ListPaymentsRequest) ([]payments.Payment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []payments.Payment
	for id := range s.data.payments {
		p, _ := s.paymentLocked(id)
		if req.PartyType != "" && p.PartyType != req.PartyType {
			continue
		}
		if req.PartyID != nil && p.PartyID != *req.PartyID {
			continue
		}
		if req.Status != "" && p.Status != req.Status {
			continue
		}
		if req.Method != "" && p.Method != req.Method {
			continue
		}
		if req.DateFrom != nil && p.PaymentDate.Before(*req.DateFrom) {
			continue
		}
		if req.DateTo != nil && p.PaymentDate.After(*req.DateTo) {
			continue
		}
		if !matches(req.Search, p.Number, p.Reference, p.PartyName) {
			continue
		}
		p.Allocations = nil
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PaymentDate.Equal(out[j].PaymentDate) {
			return out[i].PaymentDate.After(out[j].PaymentDate)
		}
		return out[i].ID > out[j].ID
	})
	return page(out, req.Limit, req.Offset), len(out), nil
}
