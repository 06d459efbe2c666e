package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(4)
	db.SetMaxOpenConns(16)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates missing tables. Existing tables are left untouched.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &pgTx{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return listCustomers(ctx, s.db)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, category, unit, stock, unit_price, cost_price, safety_stock
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Stock, &p.UnitPrice, &p.CostPrice, &p.SafetyStock); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	return getProduct(ctx, s.db, "id", id, false)
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return loadSales(ctx, s.db, "", nil, false)
}

func (s *Store) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	return getSale(ctx, s.db, id, false)
}

func (s *Store) ListInventoryTransactions(ctx context.Context) ([]domain.InventoryTransaction, error) {
	return loadLedger(ctx, s.db, "", nil)
}

func (s *Store) ListInventoryTransactionsByProduct(ctx context.Context, productID string) ([]domain.InventoryTransaction, error) {
	return loadLedger(ctx, s.db, "WHERE product_id = $1", []any{productID})
}

func listCustomers(ctx context.Context, q querier) ([]domain.Customer, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, contact, address, balance, created_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Contact, &c.Address, &c.Balance, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = c.CreatedAt.UTC()
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func getCustomer(ctx context.Context, q querier, column string, value string, lock bool) (domain.Customer, error) {
	query := `
		SELECT id, name, contact, address, balance, created_at
		FROM customers
		WHERE ` + column + ` = $1`
	if lock {
		query += " FOR UPDATE"
	}

	var c domain.Customer
	err := q.QueryRowContext(ctx, query, value).Scan(&c.ID, &c.Name, &c.Contact, &c.Address, &c.Balance, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Customer{}, store.NotFound("customer", value)
		}
		return domain.Customer{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func getProduct(ctx context.Context, q querier, column string, value string, lock bool) (domain.Product, error) {
	query := `
		SELECT id, name, category, unit, stock, unit_price, cost_price, safety_stock
		FROM products
		WHERE ` + column + ` = $1`
	if lock {
		query += " FOR UPDATE"
	}

	var p domain.Product
	err := q.QueryRowContext(ctx, query, value).Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Stock, &p.UnitPrice, &p.CostPrice, &p.SafetyStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, store.NotFound("product", value)
		}
		return domain.Product{}, err
	}
	return p, nil
}

func getSale(ctx context.Context, q querier, id string, lock bool) (domain.Sale, error) {
	sales, err := loadSales(ctx, q, "WHERE id = $1", []any{id}, lock)
	if err != nil {
		return domain.Sale{}, err
	}
	if len(sales) == 0 {
		return domain.Sale{}, store.NotFound("sale", id)
	}
	return sales[0], nil
}

func loadSales(ctx context.Context, q querier, where string, args []any, lock bool) ([]domain.Sale, error) {
	query := `
		SELECT id, sale_date, customer_id, customer_name, status, notes, total_amount, is_multi_item, created_at
		FROM sales ` + where + `
		ORDER BY sale_date DESC, created_at DESC, id`
	if lock {
		query += " FOR UPDATE"
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	type header struct {
		sale  domain.Sale
		multi bool
	}
	headers := make([]header, 0, 64)
	ids := make([]string, 0, 64)
	for rows.Next() {
		var h header
		var saleDate time.Time
		if err := rows.Scan(&h.sale.ID, &saleDate, &h.sale.CustomerID, &h.sale.CustomerName, &h.sale.Status,
			&h.sale.Notes, &h.sale.TotalAmount, &h.multi, &h.sale.CreatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		h.sale.Date = saleDate.Format(domain.DateLayout)
		h.sale.CreatedAt = h.sale.CreatedAt.UTC()
		headers = append(headers, h)
		ids = append(ids, h.sale.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()
	if len(headers) == 0 {
		return nil, nil
	}

	itemRows, err := q.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, quantity, unit_price
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	itemsBySale := make(map[string][]domain.SaleItem, len(ids))
	for itemRows.Next() {
		var saleID string
		var item domain.SaleItem
		if err := itemRows.Scan(&saleID, &item.ProductID, &item.ProductName, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		itemsBySale[saleID] = append(itemsBySale[saleID], item)
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	sales := make([]domain.Sale, 0, len(headers))
	for _, h := range headers {
		items := itemsBySale[h.sale.ID]
		if h.multi {
			h.sale.Lines = domain.MultiItem(items)
		} else {
			if len(items) != 1 {
				return nil, fmt.Errorf("sale %s: single-item sale has %d lines", h.sale.ID, len(items))
			}
			h.sale.Lines = domain.SingleItem(items[0])
		}
		sales = append(sales, h.sale)
	}
	return sales, nil
}

func loadLedger(ctx context.Context, q querier, where string, args []any) ([]domain.InventoryTransaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, product_name, tx_date, quantity, unit_price, total_cost, type, notes, related_sale_id, created_at
		FROM inventory_transactions `+where+`
		ORDER BY tx_date DESC, created_at DESC, id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ledger := make([]domain.InventoryTransaction, 0, 64)
	for rows.Next() {
		var row domain.InventoryTransaction
		var txDate time.Time
		var relatedSaleID sql.NullString
		if err := rows.Scan(&row.ID, &row.ProductID, &row.ProductName, &txDate, &row.Quantity, &row.UnitPrice,
			&row.TotalCost, &row.Type, &row.Notes, &relatedSaleID, &row.CreatedAt); err != nil {
			return nil, err
		}
		row.Date = txDate.Format(domain.DateLayout)
		row.RelatedSaleID = relatedSaleID.String
		row.CreatedAt = row.CreatedAt.UTC()
		ledger = append(ledger, row)
	}
	return ledger, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func parseDate(value string) (time.Time, error) {
	day, err := time.Parse(domain.DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, &store.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return day, nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
