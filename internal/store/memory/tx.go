package memory

import (
	"context"

	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/store"
)

type memTx struct {
	state *snapshot
}

func (t *memTx) GetCustomer(_ context.Context, id string) (domain.Customer, error) {
	customer, ok := t.state.customers[id]
	if !ok {
		return domain.Customer{}, store.NotFound("customer", id)
	}
	return customer, nil
}

func (t *memTx) FindCustomerByName(_ context.Context, name string) (domain.Customer, error) {
	for _, customer := range t.state.customers {
		if customer.Name == name {
			return customer, nil
		}
	}
	return domain.Customer{}, store.NotFound("customer", name)
}

func (t *memTx) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	return sortedCustomers(t.state.customers), nil
}

func (t *memTx) PutCustomer(_ context.Context, customer domain.Customer) error {
	if customer.ID == "" || customer.Name == "" {
		return store.ErrInvalidInput
	}
	for id, existing := range t.state.customers {
		if id != customer.ID && existing.Name == customer.Name {
			return store.ErrConflict
		}
	}
	t.state.customers[customer.ID] = customer
	return nil
}

func (t *memTx) DeleteCustomer(_ context.Context, id string) error {
	if _, ok := t.state.customers[id]; !ok {
		return store.NotFound("customer", id)
	}
	delete(t.state.customers, id)
	return nil
}

func (t *memTx) GetProduct(_ context.Context, id string) (domain.Product, error) {
	product, ok := t.state.products[id]
	if !ok {
		return domain.Product{}, store.NotFound("product", id)
	}
	return product, nil
}

func (t *memTx) FindProductByName(_ context.Context, name string) (domain.Product, error) {
	for _, product := range t.state.products {
		if product.Name == name {
			return product, nil
		}
	}
	return domain.Product{}, store.NotFound("product", name)
}

func (t *memTx) PutProduct(_ context.Context, product domain.Product) error {
	if product.ID == "" || product.Name == "" {
		return store.ErrInvalidInput
	}
	for id, existing := range t.state.products {
		if id != product.ID && existing.Name == product.Name {
			return store.ErrConflict
		}
	}
	t.state.products[product.ID] = product
	return nil
}

func (t *memTx) DeleteProduct(_ context.Context, id string) error {
	if _, ok := t.state.products[id]; !ok {
		return store.NotFound("product", id)
	}
	delete(t.state.products, id)
	return nil
}

func (t *memTx) GetSale(_ context.Context, id string) (domain.Sale, error) {
	sale, ok := t.state.sales[id]
	if !ok {
		return domain.Sale{}, store.NotFound("sale", id)
	}
	return sale, nil
}

func (t *memTx) ListSales(_ context.Context) ([]domain.Sale, error) {
	return sortedSales(t.state.sales), nil
}

func (t *memTx) PutSale(_ context.Context, sale domain.Sale) error {
	if sale.ID == "" || sale.Lines.IsZero() {
		return store.ErrInvalidInput
	}
	t.state.sales[sale.ID] = sale
	return nil
}

func (t *memTx) DeleteSale(_ context.Context, id string) error {
	if _, ok := t.state.sales[id]; !ok {
		return store.NotFound("sale", id)
	}
	delete(t.state.sales, id)
	return nil
}

func (t *memTx) GetInventoryTransaction(_ context.Context, id string) (domain.InventoryTransaction, error) {
	row, ok := t.state.ledger[id]
	if !ok {
		return domain.InventoryTransaction{}, store.NotFound("inventory transaction", id)
	}
	return row, nil
}

func (t *memTx) ListInventoryTransactionsBySale(_ context.Context, saleID string) ([]domain.InventoryTransaction, error) {
	if saleID == "" {
		return nil, nil
	}
	return sortedLedger(t.state.ledger, func(row domain.InventoryTransaction) bool {
		return row.RelatedSaleID == saleID
	}), nil
}

func (t *memTx) PutInventoryTransaction(_ context.Context, row domain.InventoryTransaction) error {
	if row.ID == "" || row.ProductID == "" {
		return store.ErrInvalidInput
	}
	t.state.ledger[row.ID] = row
	return nil
}

func (t *memTx) DeleteInventoryTransaction(_ context.Context, id string) error {
	if _, ok := t.state.ledger[id]; !ok {
		return store.NotFound("inventory transaction", id)
	}
	delete(t.state.ledger, id)
	return nil
}
