package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/store"
	"riceledger/backend/internal/xid"
)

// MaxSaleItems caps the lines of one sale.
const MaxSaleItems = 100

// draftItem is one requested line. productID pins a line carried over from
// an existing sale to its product; if that product has been deleted the line
// is kept detached and moves no stock.
type draftItem struct {
	productID string
	input     domain.SaleItemInput
}

type saleDraft struct {
	id     string
	date   string
	status domain.SaleStatus
	notes  string

	// customerID pins an edited sale to its customer unless the edit names
	// a different one.
	customerID string
	customer   string
	multi      bool
	items      []draftItem
	createdAt  time.Time
}

type stockDemand struct {
	product domain.Product
	created bool
	qty     int
}

// demandSet aggregates requested quantity per distinct product.
type demandSet struct {
	byID   map[string]*stockDemand
	byName map[string]*stockDemand
	order  []*stockDemand
}

func newDemandSet() *demandSet {
	return &demandSet{
		byID:   make(map[string]*stockDemand),
		byName: make(map[string]*stockDemand),
	}
}

func (d *demandSet) add(product domain.Product, created bool) *stockDemand {
	if existing, ok := d.byID[product.ID]; ok {
		return existing
	}
	dm := &stockDemand{product: product, created: created}
	d.byID[product.ID] = dm
	d.byName[product.Name] = dm
	d.order = append(d.order, dm)
	return dm
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	return s.repo.GetSale(ctx, strings.TrimSpace(id))
}

// AddSale records a single-item sale.
func (s *Service) AddSale(ctx context.Context, req domain.NewSaleRequest) (domain.SaleResult, error) {
	if err := s.check(req); err != nil {
		return domain.SaleResult{}, err
	}
	item := domain.SaleItemInput{ProductName: req.ProductName, Quantity: req.Quantity, UnitPrice: req.UnitPrice}
	if err := s.check(item); err != nil {
		return domain.SaleResult{}, err
	}
	return s.insertSale(ctx, s.newDraft(req, false, []draftItem{{input: item}}))
}

// AddMultiItemSale records a sale with one or more lines in one unit of work.
func (s *Service) AddMultiItemSale(ctx context.Context, req domain.NewSaleRequest) (domain.SaleResult, error) {
	if err := s.check(req); err != nil {
		return domain.SaleResult{}, err
	}
	if len(req.Items) == 0 {
		return domain.SaleResult{}, invalid("items", "must contain at least one item")
	}
	items := make([]draftItem, 0, len(req.Items))
	for _, in := range req.Items {
		items = append(items, draftItem{input: in})
	}
	return s.insertSale(ctx, s.newDraft(req, true, items))
}

func (s *Service) newDraft(req domain.NewSaleRequest, multi bool, items []draftItem) saleDraft {
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = s.today()
	}
	return saleDraft{
		id:        xid.New("sale"),
		date:      date,
		status:    req.Status,
		notes:     req.Notes,
		customer:  req.CustomerName,
		multi:     multi,
		items:     items,
		createdAt: s.now().UTC(),
	}
}

func (s *Service) insertSale(ctx context.Context, draft saleDraft) (domain.SaleResult, error) {
	var result domain.SaleResult
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sale, warnings, err := s.applySale(ctx, tx, draft)
		if err != nil {
			return err
		}
		result = newSaleResult(sale, warnings)
		return nil
	})
	s.metrics.ObserveSaleMutation("add", err)
	if err != nil {
		return domain.SaleResult{}, fmt.Errorf("add sale: %w", err)
	}
	s.saleCommitted(ctx, "sale added", result)
	return result, nil
}

// UpdateSale reverses the stored sale and applies the patched one under the
// same id, all in one unit of work.
func (s *Service) UpdateSale(ctx context.Context, id string, update domain.SaleUpdate) (domain.SaleResult, error) {
	id = strings.TrimSpace(id)
	var result domain.SaleResult
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		old, err := tx.GetSale(ctx, id)
		if err != nil {
			return err
		}
		if err := s.reverseSale(ctx, tx, old); err != nil {
			return err
		}
		sale, warnings, err := s.applySale(ctx, tx, draftFromUpdate(old, update))
		if err != nil {
			return err
		}
		result = newSaleResult(sale, warnings)
		return nil
	})
	s.metrics.ObserveSaleMutation("update", err)
	if err != nil {
		return domain.SaleResult{}, fmt.Errorf("update sale: %w", err)
	}
	s.saleCommitted(ctx, "sale updated", result)
	return result, nil
}

func (s *Service) DeleteSale(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		old, err := tx.GetSale(ctx, id)
		if err != nil {
			return err
		}
		if err := s.reverseSale(ctx, tx, old); err != nil {
			return err
		}
		return tx.DeleteSale(ctx, id)
	})
	s.metrics.ObserveSaleMutation("delete", err)
	if err != nil {
		return fmt.Errorf("delete sale: %w", err)
	}
	s.committed(ctx, "sale deleted", slog.String("sale_id", id))
	return nil
}

func draftFromUpdate(old domain.Sale, update domain.SaleUpdate) saleDraft {
	draft := saleDraft{
		id:         old.ID,
		date:       old.Date,
		status:     old.Status,
		notes:      old.Notes,
		customer:   old.CustomerName,
		customerID: old.CustomerID,
		multi:      old.Lines.IsMulti(),
		createdAt:  old.CreatedAt,
	}
	if update.CustomerName != nil {
		draft.customer = *update.CustomerName
		draft.customerID = ""
	}
	if update.Status != nil {
		draft.status = *update.Status
	}
	if update.Notes != nil {
		draft.notes = *update.Notes
	}
	if update.Date != nil {
		draft.date = strings.TrimSpace(*update.Date)
	}

	oldItems := old.Lines.Items()
	switch {
	case update.Items != nil:
		draft.multi = true
		draft.items = make([]draftItem, 0, len(update.Items))
		for _, in := range update.Items {
			draft.items = append(draft.items, draftItem{input: in})
		}
	case update.HasSingleItemFields() || !old.Lines.IsMulti():
		var line draftItem
		if len(oldItems) > 0 {
			line = carryOver(oldItems[0])
		}
		if update.ProductName != nil {
			line.productID = ""
			line.input.ProductName = *update.ProductName
		}
		if update.Quantity != nil {
			line.input.Quantity = *update.Quantity
		}
		if update.UnitPrice != nil {
			line.input.UnitPrice = *update.UnitPrice
		}
		draft.multi = false
		draft.items = []draftItem{line}
	default:
		draft.items = make([]draftItem, 0, len(oldItems))
		for _, item := range oldItems {
			draft.items = append(draft.items, carryOver(item))
		}
	}
	return draft
}

func carryOver(item domain.SaleItem) draftItem {
	return draftItem{
		productID: item.ProductID,
		input: domain.SaleItemInput{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		},
	}
}

func (s *Service) validateDraft(d saleDraft) error {
	if strings.TrimSpace(d.customer) == "" {
		return invalid("customer_name", "is required")
	}
	if utf8.RuneCountInString(strings.TrimSpace(d.customer)) > 100 {
		return invalid("customer_name", "must be at most 100 characters")
	}
	if !d.status.Valid() {
		return invalid("status", "must be one of PAID UNPAID DELIVERING")
	}
	if _, err := time.Parse(domain.DateLayout, d.date); err != nil {
		return invalid("date", "must be YYYY-MM-DD")
	}
	if utf8.RuneCountInString(d.notes) > 500 {
		return invalid("notes", "must be at most 500 characters")
	}
	if !d.multi && len(d.items) != 1 {
		return invalid("items", "single-item sale needs exactly one line")
	}
	if len(d.items) > MaxSaleItems {
		return invalid("items", fmt.Sprintf("must contain at most %d items", MaxSaleItems))
	}
	for _, item := range d.items {
		if err := s.check(item.input); err != nil {
			return err
		}
	}
	return nil
}

// applySale resolves entities, checks and decrements stock, writes the
// outbound ledger rows, charges the customer when unpaid and stores the sale.
func (s *Service) applySale(ctx context.Context, tx store.Tx, d saleDraft) (domain.Sale, []string, error) {
	if err := s.validateDraft(d); err != nil {
		return domain.Sale{}, nil, err
	}

	customer, err := s.draftCustomer(ctx, tx, d)
	if err != nil {
		return domain.Sale{}, nil, err
	}

	demands := newDemandSet()
	lines := make([]domain.SaleItem, 0, len(d.items))
	for _, item := range d.items {
		dm, err := s.resolveLine(ctx, tx, demands, item)
		if err != nil {
			return domain.Sale{}, nil, err
		}
		dm.qty += item.input.Quantity
		lines = append(lines, domain.SaleItem{
			ProductID:   dm.product.ID,
			ProductName: dm.product.Name,
			Quantity:    item.input.Quantity,
			UnitPrice:   item.input.UnitPrice,
		})
	}

	for _, dm := range demands.order {
		if dm.created {
			dm.product.Stock += NewProductStockGrant(dm.qty)
		}
		if dm.product.Stock < dm.qty {
			return domain.Sale{}, nil, &store.InsufficientStockError{
				Product:   dm.product.Name,
				Available: dm.product.Stock,
				Requested: dm.qty,
			}
		}
	}

	var warnings []string
	for _, dm := range demands.order {
		dm.product.Stock -= dm.qty
		if err := tx.PutProduct(ctx, dm.product); err != nil {
			return domain.Sale{}, nil, err
		}
		if dm.product.IsLowStock() {
			warnings = append(warnings, lowStockWarning(dm.product))
		}
	}

	for n, line := range lines {
		row := domain.InventoryTransaction{
			ID:            xid.LedgerRow(d.id, n+1),
			ProductID:     line.ProductID,
			ProductName:   line.ProductName,
			Date:          d.date,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPrice,
			TotalCost:     line.Amount(),
			Type:          domain.LedgerOut,
			Notes:         "판매 출고: " + customer.Name,
			RelatedSaleID: d.id,
			CreatedAt:     d.createdAt,
		}
		if err := tx.PutInventoryTransaction(ctx, row); err != nil {
			return domain.Sale{}, nil, err
		}
	}

	saleLines := domain.MultiItem(lines)
	if !d.multi {
		saleLines = domain.SingleItem(lines[0])
	}
	sale := domain.Sale{
		ID:           d.id,
		Date:         d.date,
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
		Status:       d.status,
		Notes:        d.notes,
		TotalAmount:  saleLines.Total(),
		CreatedAt:    d.createdAt,
		Lines:        saleLines,
	}

	if sale.Status == domain.SaleStatusUnpaid && sale.TotalAmount != 0 {
		if customer.Balance > math.MaxInt64-sale.TotalAmount {
			return domain.Sale{}, nil, invalid("total_amount", "would overflow the customer balance")
		}
		customer.Balance += sale.TotalAmount
		if err := tx.PutCustomer(ctx, customer); err != nil {
			return domain.Sale{}, nil, err
		}
	}
	if err := tx.PutSale(ctx, sale); err != nil {
		return domain.Sale{}, nil, err
	}
	return sale, warnings, nil
}

// draftCustomer returns the pinned customer of an edited sale, or resolves
// the draft's customer name when nothing is pinned or the pinned customer
// has been deleted.
func (s *Service) draftCustomer(ctx context.Context, tx store.Tx, d saleDraft) (domain.Customer, error) {
	if d.customerID != "" {
		customer, err := tx.GetCustomer(ctx, d.customerID)
		if err == nil {
			return customer, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Customer{}, err
		}
	}
	return s.resolveCustomer(ctx, tx, d.customer)
}

func (s *Service) resolveLine(ctx context.Context, tx store.Tx, demands *demandSet, item draftItem) (*stockDemand, error) {
	if item.productID != "" {
		if dm, ok := demands.byID[item.productID]; ok {
			return dm, nil
		}
		product, err := tx.GetProduct(ctx, item.productID)
		if err == nil {
			return demands.add(product, false), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		// Kept out of the demand set: no stock check and no stock write.
		s.logger.Warn("sale line kept for deleted product",
			slog.String("product_id", item.productID), slog.String("product", item.input.ProductName))
		return &stockDemand{product: domain.Product{ID: item.productID, Name: item.input.ProductName}}, nil
	}

	name := strings.TrimSpace(item.input.ProductName)
	if dm, ok := demands.byName[name]; ok {
		return dm, nil
	}
	product, created, err := s.resolveProduct(ctx, tx, name, item.input.UnitPrice)
	if err != nil {
		return nil, err
	}
	return demands.add(product, created), nil
}

// reverseSale undoes the stock, ledger and balance effects of a stored sale.
// Products or customers deleted since the sale are skipped.
func (s *Service) reverseSale(ctx context.Context, tx store.Tx, sale domain.Sale) error {
	for _, item := range sale.Lines.Items() {
		product, err := tx.GetProduct(ctx, item.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("reversal skipped missing product",
				slog.String("sale_id", sale.ID), slog.String("product_id", item.ProductID))
			continue
		}
		if err != nil {
			return err
		}
		product.Stock += item.Quantity
		if err := tx.PutProduct(ctx, product); err != nil {
			return err
		}
	}

	rows, err := tx.ListInventoryTransactionsBySale(ctx, sale.ID)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := tx.DeleteInventoryTransaction(ctx, row.ID); err != nil {
			return err
		}
	}

	if sale.Status != domain.SaleStatusUnpaid || sale.TotalAmount == 0 {
		return nil
	}
	customer, err := tx.GetCustomer(ctx, sale.CustomerID)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("reversal skipped missing customer",
			slog.String("sale_id", sale.ID), slog.String("customer_id", sale.CustomerID))
		return nil
	}
	if err != nil {
		return err
	}
	customer.Balance -= sale.TotalAmount
	return tx.PutCustomer(ctx, customer)
}

func lowStockWarning(p domain.Product) string {
	return fmt.Sprintf("%s 재고가 안전재고(%d%s) 이하입니다 (현재: %d%s)", p.Name, p.SafetyStock, p.Unit, p.Stock, p.Unit)
}

func newSaleResult(sale domain.Sale, warnings []string) domain.SaleResult {
	return domain.SaleResult{
		Success:  true,
		ID:       sale.ID,
		Sale:     sale,
		Warning:  strings.Join(warnings, "; "),
		Warnings: warnings,
	}
}

func (s *Service) saleCommitted(ctx context.Context, msg string, result domain.SaleResult) {
	s.metrics.AddLowStockWarnings(len(result.Warnings))
	s.committed(ctx, msg,
		slog.String("sale_id", result.ID),
		slog.String("customer", result.Sale.CustomerName),
		slog.Int64("total", result.Sale.TotalAmount),
		slog.Int("warnings", len(result.Warnings)),
	)
}
