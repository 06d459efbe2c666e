package postgres

import (
	"context"
	"database/sql"
	"errors"

	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/store"
)

// pgTx locks every row it reads for modification.
type pgTx struct {
	q querier
}

func (t *pgTx) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	return getCustomer(ctx, t.q, "id", id, true)
}

func (t *pgTx) FindCustomerByName(ctx context.Context, name string) (domain.Customer, error) {
	return getCustomer(ctx, t.q, "name", name, true)
}

func (t *pgTx) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return listCustomers(ctx, t.q)
}

func (t *pgTx) PutCustomer(ctx context.Context, c domain.Customer) error {
	if c.ID == "" || c.Name == "" {
		return store.ErrInvalidInput
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO customers (id, name, contact, address, balance, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, contact = EXCLUDED.contact, address = EXCLUDED.address,
			balance = EXCLUDED.balance, updated_at = now()
	`, c.ID, c.Name, c.Contact, c.Address, c.Balance, c.CreatedAt)
	return mapWriteError(err)
}

func (t *pgTx) DeleteCustomer(ctx context.Context, id string) error {
	return t.deleteByID(ctx, "customers", "customer", id)
}

func (t *pgTx) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return getProduct(ctx, t.q, "id", id, true)
}

func (t *pgTx) FindProductByName(ctx context.Context, name string) (domain.Product, error) {
	return getProduct(ctx, t.q, "name", name, true)
}

func (t *pgTx) PutProduct(ctx context.Context, p domain.Product) error {
	if p.ID == "" || p.Name == "" {
		return store.ErrInvalidInput
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO products (id, name, category, unit, stock, unit_price, cost_price, safety_stock, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, category = EXCLUDED.category, unit = EXCLUDED.unit, stock = EXCLUDED.stock,
			unit_price = EXCLUDED.unit_price, cost_price = EXCLUDED.cost_price,
			safety_stock = EXCLUDED.safety_stock, updated_at = now()
	`, p.ID, p.Name, p.Category, p.Unit, p.Stock, p.UnitPrice, p.CostPrice, p.SafetyStock)
	return mapWriteError(err)
}

func (t *pgTx) DeleteProduct(ctx context.Context, id string) error {
	return t.deleteByID(ctx, "products", "product", id)
}

func (t *pgTx) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	return getSale(ctx, t.q, id, true)
}

func (t *pgTx) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return loadSales(ctx, t.q, "", nil, false)
}

// PutSale replaces the sale header and all of its lines.
func (t *pgTx) PutSale(ctx context.Context, sale domain.Sale) error {
	if sale.ID == "" || sale.Lines.IsZero() {
		return store.ErrInvalidInput
	}
	saleDate, err := parseDate(sale.Date)
	if err != nil {
		return err
	}

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO sales (id, sale_date, customer_id, customer_name, status, notes, total_amount, is_multi_item, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE
		SET sale_date = EXCLUDED.sale_date, customer_id = EXCLUDED.customer_id,
			customer_name = EXCLUDED.customer_name, status = EXCLUDED.status, notes = EXCLUDED.notes,
			total_amount = EXCLUDED.total_amount, is_multi_item = EXCLUDED.is_multi_item
	`, sale.ID, saleDate, sale.CustomerID, sale.CustomerName, string(sale.Status), sale.Notes,
		sale.TotalAmount, sale.Lines.IsMulti(), sale.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}

	if _, err := t.q.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID); err != nil {
		return err
	}
	for i, item := range sale.Lines.Items() {
		_, err := t.q.ExecContext(ctx, `
			INSERT INTO sale_items (sale_id, line_no, product_id, product_name, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, sale.ID, i+1, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) DeleteSale(ctx context.Context, id string) error {
	return t.deleteByID(ctx, "sales", "sale", id)
}

func (t *pgTx) GetInventoryTransaction(ctx context.Context, id string) (domain.InventoryTransaction, error) {
	rows, err := loadLedger(ctx, t.q, "WHERE id = $1", []any{id})
	if err != nil {
		return domain.InventoryTransaction{}, err
	}
	if len(rows) == 0 {
		return domain.InventoryTransaction{}, store.NotFound("inventory transaction", id)
	}
	return rows[0], nil
}

func (t *pgTx) ListInventoryTransactionsBySale(ctx context.Context, saleID string) ([]domain.InventoryTransaction, error) {
	if saleID == "" {
		return nil, nil
	}
	return loadLedger(ctx, t.q, "WHERE related_sale_id = $1", []any{saleID})
}

func (t *pgTx) PutInventoryTransaction(ctx context.Context, row domain.InventoryTransaction) error {
	if row.ID == "" || row.ProductID == "" {
		return store.ErrInvalidInput
	}
	txDate, err := parseDate(row.Date)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO inventory_transactions (
			id, product_id, product_name, tx_date, quantity, unit_price, total_cost, type, notes, related_sale_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE
		SET product_id = EXCLUDED.product_id, product_name = EXCLUDED.product_name, tx_date = EXCLUDED.tx_date,
			quantity = EXCLUDED.quantity, unit_price = EXCLUDED.unit_price, total_cost = EXCLUDED.total_cost,
			type = EXCLUDED.type, notes = EXCLUDED.notes, related_sale_id = EXCLUDED.related_sale_id
	`, row.ID, row.ProductID, row.ProductName, txDate, row.Quantity, row.UnitPrice, row.TotalCost,
		string(row.Type), row.Notes, nullIfEmpty(row.RelatedSaleID), row.CreatedAt)
	return mapWriteError(err)
}

func (t *pgTx) DeleteInventoryTransaction(ctx context.Context, id string) error {
	return t.deleteByID(ctx, "inventory_transactions", "inventory transaction", id)
}

// deleteByID is only called with the fixed table names above.
func (t *pgTx) deleteByID(ctx context.Context, table string, kind string, id string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.NotFound(kind, id)
	}
	return nil
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
