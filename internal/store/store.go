package store

import (
	"context"
	"errors"
	"fmt"

	"riceledger/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrLedgerRowLocked   = errors.New("ledger row is managed by its sale")
	ErrConflict          = errors.New("conflict")
)

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type InsufficientStockError struct {
	Product   string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d", e.Product, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Repository exposes committed reads and a unit of work for mutations.
type Repository interface {
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	GetSale(ctx context.Context, id string) (domain.Sale, error)
	ListInventoryTransactions(ctx context.Context) ([]domain.InventoryTransaction, error)
	ListInventoryTransactionsByProduct(ctx context.Context, productID string) ([]domain.InventoryTransaction, error)

	// WithinTx runs fn against a transaction handle. Every write made through
	// the handle is committed when fn returns nil and discarded otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// Tx is the read-your-writes view used inside WithinTx. Put methods upsert
// by id and return ErrConflict when the name is already taken by another row.
type Tx interface {
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
	FindCustomerByName(ctx context.Context, name string) (domain.Customer, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	PutCustomer(ctx context.Context, customer domain.Customer) error
	DeleteCustomer(ctx context.Context, id string) error

	GetProduct(ctx context.Context, id string) (domain.Product, error)
	FindProductByName(ctx context.Context, name string) (domain.Product, error)
	PutProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, id string) error

	GetSale(ctx context.Context, id string) (domain.Sale, error)
	ListSales(ctx context.Context) ([]domain.Sale, error)
	PutSale(ctx context.Context, sale domain.Sale) error
	DeleteSale(ctx context.Context, id string) error

	GetInventoryTransaction(ctx context.Context, id string) (domain.InventoryTransaction, error)
	ListInventoryTransactionsBySale(ctx context.Context, saleID string) ([]domain.InventoryTransaction, error)
	PutInventoryTransaction(ctx context.Context, row domain.InventoryTransaction) error
	DeleteInventoryTransaction(ctx context.Context, id string) error
}
