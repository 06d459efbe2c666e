package service

import (
	"context"
	"errors"
	"testing"

	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/store"
)

func ptr[T any](v T) *T { return &v }

func addUnpaid(t *testing.T, svc *Service, customer string, product string, qty int, price int64) domain.SaleResult {
	t.Helper()
	result, err := svc.AddSale(context.Background(), domain.NewSaleRequest{
		CustomerName: customer,
		ProductName:  product,
		Quantity:     qty,
		UnitPrice:    price,
		Status:       domain.SaleStatusUnpaid,
	})
	if err != nil {
		t.Fatalf("add sale: %v", err)
	}
	return result
}

func TestUpdateSaleQuantityReturnsDifferenceToStock(t *testing.T) {
	svc := newTestService(t)
	p := seedProduct(t, svc, "P", 25, 0, 1000)
	sale := addUnpaid(t, svc, "A", "P", 5, 1000)
	if got := mustProduct(t, svc, p.ID).Stock; got != 20 {
		t.Fatalf("expected stock 20 after sale, got %d", got)
	}

	result, err := svc.UpdateSale(context.Background(), sale.ID, domain.SaleUpdate{Quantity: ptr(3)})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	if result.ID != sale.ID {
		t.Fatalf("expected id to be preserved, got %s", result.ID)
	}
	if got := mustProduct(t, svc, p.ID).Stock; got != 22 {
		t.Fatalf("expected stock 22, got %d", got)
	}
	rows := ledgerFor(t, svc, p.ID)
	if len(rows) != 1 || rows[0].Quantity != 3 {
		t.Fatalf("expected a single out row of 3, got %+v", rows)
	}
	customer, _ := customerByName(t, svc, "A")
	if customer.Balance != 3000 {
		t.Fatalf("expected balance 3000, got %d", customer.Balance)
	}
}

func TestUpdateSaleStatusOnlyKeepsLedgerRows(t *testing.T) {
	svc := newTestService(t)
	p := seedProduct(t, svc, "P", 10, 0, 1000)
	sale := addUnpaid(t, svc, "A", "P", 4, 1000)
	before := ledgerFor(t, svc, p.ID)

	if _, err := svc.UpdateSale(context.Background(), sale.ID, domain.SaleUpdate{Status: ptr(domain.SaleStatusPaid)}); err != nil {
		t.Fatalf("update sale: %v", err)
	}

	after := ledgerFor(t, svc, p.ID)
	if len(after) != len(before) {
		t.Fatalf("expected %d rows, got %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Quantity != after[i].Quantity ||
			before[i].Date != after[i].Date || !before[i].CreatedAt.Equal(after[i].CreatedAt) {
			t.Fatalf("ledger row changed: %+v -> %+v", before[i], after[i])
		}
	}
	if got := mustProduct(t, svc, p.ID).Stock; got != 6 {
		t.Fatalf("expected stock 6, got %d", got)
	}
	customer, _ := customerByName(t, svc, "A")
	if customer.Balance != 0 {
		t.Fatalf("expected paid sale to clear balance, got %d", customer.Balance)
	}
}

func TestUpdateSalePriceAndDateRewriteLedgerRow(t *testing.T) {
	svc := newTestService(t)
	p := seedProduct(t, svc, "P", 10, 0, 1000)
	sale := addUnpaid(t, svc, "A", "P", 2, 1000)

	result, err := svc.UpdateSale(context.Background(), sale.ID, domain.SaleUpdate{
		UnitPrice: ptr(int64(1500)),
		Date:      ptr("2024-04-28"),
	})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	if result.Sale.TotalAmount != 3000 || result.Sale.Date != "2024-04-28" {
		t.Fatalf("unexpected sale %+v", result.Sale)
	}

	rows := ledgerFor(t, svc, p.ID)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0].UnitPrice != 1500 || rows[0].TotalCost != 3000 || rows[0].Date != "2024-04-28" {
		t.Fatalf("ledger row not rewritten: %+v", rows[0])
	}
	if got := mustProduct(t, svc, p.ID).Stock; got != 8 {
		t.Fatalf("expected stock 8, got %d", got)
	}
	customer, _ := customerByName(t, svc, "A")
	if customer.Balance != 3000 {
		t.Fatalf("expected balance 3000, got %d", customer.Balance)
	}
}

func TestUpdateSaleMovesBalanceToNewCustomer(t *testing.T) {
	svc := newTestService(t)
	seedProduct(t, svc, "P", 10, 0, 1000)
	sale := addUnpaid(t, svc, "A", "P", 3, 1000)

	result, err := svc.UpdateSale(context.Background(), sale.ID, domain.SaleUpdate{CustomerName: ptr("B")})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	if result.Sale.CustomerName != "B" {
		t.Fatalf("expected customer B, got %s", result.Sale.CustomerName)
	}
	a, _ := customerByName(t, svc, "A")
	b, _ := customerByName(t, svc, "B")
	if a.Balance != 0 || b.Balance != 3000 {
		t.Fatalf("expected balances 0/3000, got %d/%d", a.Balance, b.Balance)
	}
}

func TestUpdateSaleFailureLeavesSaleUntouched(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := seedProduct(t, svc, "P", 10, 0, 1000)
	sale := addUnpaid(t, svc, "A", "P", 5, 1000)

	_, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdate{Quantity: ptr(20)})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if got := mustProduct(t, svc, p.ID).Stock; got != 5 {
		t.Fatalf("expected stock 5, got %d", got)
	}
	stored, err := svc.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	line, ok := stored.Lines.Single()
	if !ok || line.Quantity != 5 {
		t.Fatalf("expected original line, got %+v", stored.Lines.Items())
	}
	if rows := ledgerFor(t, svc, p.ID); len(rows) != 1 || rows[0].Quantity != 5 {
		t.Fatalf("expected original ledger row, got %+v", rows)
	}
	customer, _ := customerByName(t, svc, "A")
	if customer.Balance != 5000 {
		t.Fatalf("expected balance 5000, got %d", customer.Balance)
	}
}

func TestUpdateSaleSwitchesBetweenShapes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := seedProduct(t, svc, "P", 10, 0, 1000)
	q := seedProduct(t, svc, "Q", 10, 0, 2000)
	sale := addUnpaid(t, svc, "A", "P", 2, 1000)

	multi, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdate{Items: []domain.SaleItemInput{
		{ProductName: "P", Quantity: 1, UnitPrice: 1000},
		{ProductName: "Q", Quantity: 3, UnitPrice: 2000},
	}})
	if err != nil {
		t.Fatalf("switch to multi: %v", err)
	}
	if !multi.Sale.Lines.IsMulti() || multi.Sale.TotalAmount != 7000 {
		t.Fatalf("unexpected multi sale %+v", multi.Sale)
	}
	if mustProduct(t, svc, p.ID).Stock != 9 || mustProduct(t, svc, q.ID).Stock != 7 {
		t.Fatalf("unexpected stock after switch to multi")
	}

	single, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdate{Quantity: ptr(4)})
	if err != nil {
		t.Fatalf("switch to single: %v", err)
	}
	line, ok := single.Sale.Lines.Single()
	if !ok || line.ProductID != p.ID || line.Quantity != 4 {
		t.Fatalf("expected first line carried over, got %+v", single.Sale.Lines.Items())
	}
	if mustProduct(t, svc, p.ID).Stock != 6 || mustProduct(t, svc, q.ID).Stock != 10 {
		t.Fatalf("unexpected stock after switch to single")
	}
	if rows := ledgerFor(t, svc, q.ID); len(rows) != 0 {
		t.Fatalf("expected Q rows to be removed, got %d", len(rows))
	}
	customer, _ := customerByName(t, svc, "A")
	if customer.Balance != 4000 {
		t.Fatalf("expected balance 4000, got %d", customer.Balance)
	}
}

func TestUpdateSaleKeepsRenamedProduct(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := seedProduct(t, svc, "P", 10, 0, 1000)
	sale := addUnpaid(t, svc, "A", "P", 2, 1000)

	if _, err := svc.UpdateProduct(ctx, p.ID, domain.ProductUpdateRequest{Name: ptr("P 프리미엄")}); err != nil {
		t.Fatalf("rename product: %v", err)
	}
	result, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdate{Notes: ptr("배달 완료")})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}

	products, _ := svc.ListProducts(ctx)
	if len(products) != 1 {
		t.Fatalf("expected no new product, got %d", len(products))
	}
	line, _ := result.Sale.Lines.Single()
	if line.ProductID != p.ID || line.ProductName != "P 프리미엄" {
		t.Fatalf("expected line bound to renamed product, got %+v", line)
	}
	if got := mustProduct(t, svc, p.ID).Stock; got != 8 {
		t.Fatalf("expected stock 8, got %d", got)
	}
}

func TestUpdateSaleKeepsRenamedCustomer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedProduct(t, svc, "P", 10, 0, 1000)
	sale := addUnpaid(t, svc, "A", "P", 5, 1000)
	customer, _ := customerByName(t, svc, "A")

	if _, err := svc.UpdateCustomer(ctx, customer.ID, domain.CustomerUpdateRequest{Name: ptr("A 쌀집")}); err != nil {
		t.Fatalf("rename customer: %v", err)
	}
	result, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdate{Notes: ptr("배달 완료")})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}

	customers, _ := svc.ListCustomers(ctx)
	if len(customers) != 1 {
		t.Fatalf("expected no new customer, got %d", len(customers))
	}
	if customers[0].ID != customer.ID || customers[0].Balance != 5000 {
		t.Fatalf("expected balance 5000 to stay on %s, got %+v", customer.ID, customers[0])
	}
	if result.Sale.CustomerID != customer.ID || result.Sale.CustomerName != "A 쌀집" {
		t.Fatalf("expected sale bound to renamed customer, got %s/%s", result.Sale.CustomerID, result.Sale.CustomerName)
	}

	if _, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdate{Status: ptr(domain.SaleStatusPaid)}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	customers, _ = svc.ListCustomers(ctx)
	if len(customers) != 1 || customers[0].Balance != 0 {
		t.Fatalf("expected one customer with balance 0, got %+v", customers)
	}
}

func TestUpdateSaleOfDeletedCustomerResolvesByName(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedProduct(t, svc, "P", 10, 0, 1000)
	sale := addUnpaid(t, svc, "A", "P", 2, 1000)
	customer, _ := customerByName(t, svc, "A")
	if err := svc.DeleteCustomer(ctx, customer.ID); err != nil {
		t.Fatalf("delete customer: %v", err)
	}

	result, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdate{Notes: ptr("x")})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	recreated, ok := customerByName(t, svc, "A")
	if !ok || recreated.ID == customer.ID || recreated.Balance != 2000 {
		t.Fatalf("expected a recreated customer A with balance 2000, got %+v", recreated)
	}
	if result.Sale.CustomerID != recreated.ID {
		t.Fatalf("expected sale bound to %s, got %s", recreated.ID, result.Sale.CustomerID)
	}
}

func TestUpdateSaleKeepsLineOfDeletedProduct(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := seedProduct(t, svc, "P", 10, 0, 1000)
	sale := addUnpaid(t, svc, "A", "P", 2, 1000)
	if err := svc.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}

	result, err := svc.UpdateSale(ctx, sale.ID, domain.SaleUpdate{Status: ptr(domain.SaleStatusPaid)})
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}

	if products, _ := svc.ListProducts(ctx); len(products) != 0 {
		t.Fatalf("expected no product to be recreated, got %+v", products)
	}
	line, _ := result.Sale.Lines.Single()
	if line.ProductID != p.ID || line.Quantity != 2 || result.Sale.TotalAmount != 2000 {
		t.Fatalf("expected line to stay as recorded, got %+v", line)
	}
	rows := ledgerFor(t, svc, p.ID)
	if len(rows) != 1 || rows[0].Quantity != 2 || rows[0].RelatedSaleID != sale.ID {
		t.Fatalf("expected the out row to be kept, got %+v", rows)
	}
	customer, _ := customerByName(t, svc, "A")
	if customer.Balance != 0 {
		t.Fatalf("expected balance 0 after marking paid, got %d", customer.Balance)
	}
}

func TestUpdateSaleUnknownID(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.UpdateSale(context.Background(), "sale-missing", domain.SaleUpdate{Notes: ptr("x")})
	var nf *store.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "sale" {
		t.Fatalf("expected sale not found, got %v", err)
	}
}

func TestUpdateSaleRejectsInvalidPatch(t *testing.T) {
	svc := newTestService(t)
	p := seedProduct(t, svc, "P", 10, 0, 1000)
	sale := addUnpaid(t, svc, "A", "P", 2, 1000)

	cases := map[string]domain.SaleUpdate{
		"zero quantity":  {Quantity: ptr(0)},
		"bad status":     {Status: ptr(domain.SaleStatus("SOMEDAY"))},
		"bad date":       {Date: ptr("yesterday")},
		"empty customer": {CustomerName: ptr("  ")},
		"bad item":       {Items: []domain.SaleItemInput{{ProductName: "P", Quantity: -1}}},
	}
	for name, update := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.UpdateSale(context.Background(), sale.ID, update)
			if !errors.Is(err, store.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
	if got := mustProduct(t, svc, p.ID).Stock; got != 8 {
		t.Fatalf("expected stock 8 after rejected patches, got %d", got)
	}
}

func TestDeleteSaleMatchesEditToNoItems(t *testing.T) {
	setup := func(t *testing.T) (*Service, domain.Product, domain.SaleResult) {
		svc := newTestService(t)
		p := seedProduct(t, svc, "P", 10, 0, 1000)
		sale := addUnpaid(t, svc, "A", "P", 4, 1000)
		return svc, p, sale
	}

	deleted, pd, saleD := setup(t)
	if err := deleted.DeleteSale(context.Background(), saleD.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	emptied, pe, saleE := setup(t)
	result, err := emptied.UpdateSale(context.Background(), saleE.ID, domain.SaleUpdate{Items: []domain.SaleItemInput{}})
	if err != nil {
		t.Fatalf("edit to no items: %v", err)
	}
	if result.Sale.TotalAmount != 0 || result.Sale.Lines.Len() != 0 {
		t.Fatalf("expected empty sale, got %+v", result.Sale)
	}

	if a, b := mustProduct(t, deleted, pd.ID).Stock, mustProduct(t, emptied, pe.ID).Stock; a != b || a != 10 {
		t.Fatalf("expected stock 10 in both, got %d and %d", a, b)
	}
	if a, b := len(ledgerFor(t, deleted, pd.ID)), len(ledgerFor(t, emptied, pe.ID)); a != 0 || b != 0 {
		t.Fatalf("expected no ledger rows, got %d and %d", a, b)
	}
	ca, _ := customerByName(t, deleted, "A")
	cb, _ := customerByName(t, emptied, "A")
	if ca.Balance != 0 || cb.Balance != 0 {
		t.Fatalf("expected zero balances, got %d and %d", ca.Balance, cb.Balance)
	}
}

func TestDeleteSaleTwiceReturnsNotFound(t *testing.T) {
	svc := newTestService(t)
	seedProduct(t, svc, "P", 10, 0, 1000)
	sale := addUnpaid(t, svc, "A", "P", 1, 1000)

	if err := svc.DeleteSale(context.Background(), sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	err := svc.DeleteSale(context.Background(), sale.ID)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestAddThenDeleteRestoresState(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := seedProduct(t, svc, "P", 10, 0, 1000)
	q := seedProduct(t, svc, "Q", 10, 0, 500)

	result, err := svc.AddMultiItemSale(ctx, domain.NewSaleRequest{
		CustomerName: "A",
		Status:       domain.SaleStatusUnpaid,
		Items: []domain.SaleItemInput{
			{ProductName: "P", Quantity: 2, UnitPrice: 1000},
			{ProductName: "Q", Quantity: 6, UnitPrice: 500},
		},
	})
	if err != nil {
		t.Fatalf("add sale: %v", err)
	}
	if err := svc.DeleteSale(ctx, result.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}

	if mustProduct(t, svc, p.ID).Stock != 10 || mustProduct(t, svc, q.ID).Stock != 10 {
		t.Fatalf("expected stock restored")
	}
	customer, _ := customerByName(t, svc, "A")
	if customer.Balance != 0 {
		t.Fatalf("expected balance restored, got %d", customer.Balance)
	}
	all, _ := svc.repo.ListInventoryTransactions(ctx)
	if len(all) != 0 {
		t.Fatalf("expected no ledger rows, got %d", len(all))
	}
}

func TestDeleteSaleSkipsDeletedProductAndCustomer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p := seedProduct(t, svc, "P", 10, 0, 1000)
	sale := addUnpaid(t, svc, "A", "P", 2, 1000)

	customer, _ := customerByName(t, svc, "A")
	if err := svc.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if err := svc.DeleteCustomer(ctx, customer.ID); err != nil {
		t.Fatalf("delete customer: %v", err)
	}
	if err := svc.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale with missing references: %v", err)
	}
	if _, err := svc.GetSale(ctx, sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected sale to be gone, got %v", err)
	}
}
