package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/store"
	"riceledger/backend/internal/xid"
)

const (
	DefaultProductCategory       = "백미"
	DefaultProductUnit           = "포"
	DefaultUnitPrice       int64 = 45000
	DefaultCostPrice       int64 = 39000
	DefaultSafetyStock           = 10

	// NewProductStockBuffer is added on top of the requested quantity when a
	// sale introduces a product the shop has never recorded.
	NewProductStockBuffer = 50
)

var defaultCostRatio = decimal.RequireFromString("0.85")

func NewProductStockGrant(requested int) int {
	return requested + NewProductStockBuffer
}

func defaultCostPrice(unitPrice int64) int64 {
	if unitPrice <= 0 {
		return DefaultCostPrice
	}
	return decimal.NewFromInt(unitPrice).Mul(defaultCostRatio).Floor().IntPart()
}

// resolveCustomer finds a customer by exact trimmed name or creates one.
func (s *Service) resolveCustomer(ctx context.Context, tx store.Tx, name string) (domain.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Customer{}, invalid("customer_name", "is required")
	}

	customer, err := tx.FindCustomerByName(ctx, name)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Customer{}, err
	}

	customer = domain.Customer{
		ID:        xid.New("cus"),
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	if err := tx.PutCustomer(ctx, customer); err != nil {
		return domain.Customer{}, err
	}
	return customer, nil
}

// resolveProduct finds a product by exact trimmed name or creates one with
// zero stock. created reports whether this call created it.
func (s *Service) resolveProduct(ctx context.Context, tx store.Tx, name string, suggestedUnitPrice int64) (domain.Product, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Product{}, false, invalid("product_name", "is required")
	}

	product, err := tx.FindProductByName(ctx, name)
	if err == nil {
		return product, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Product{}, false, err
	}

	unitPrice := suggestedUnitPrice
	if unitPrice <= 0 {
		unitPrice = DefaultUnitPrice
	}
	product = domain.Product{
		ID:          xid.New("prd"),
		Name:        name,
		Category:    DefaultProductCategory,
		Unit:        DefaultProductUnit,
		Stock:       0,
		UnitPrice:   unitPrice,
		CostPrice:   defaultCostPrice(suggestedUnitPrice),
		SafetyStock: DefaultSafetyStock,
	}
	if err := tx.PutProduct(ctx, product); err != nil {
		return domain.Product{}, false, err
	}
	return product, true, nil
}
