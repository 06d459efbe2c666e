package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/store"
	"riceledger/backend/internal/xid"
)

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

// CreateProduct registers a product with explicit stock and prices. Zero
// prices fall back to the same defaults used for products created by a sale.
func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:          xid.New("prd"),
		Name:        strings.TrimSpace(req.Name),
		Category:    defaultString(strings.TrimSpace(req.Category), DefaultProductCategory),
		Unit:        defaultString(strings.TrimSpace(req.Unit), DefaultProductUnit),
		Stock:       req.Stock,
		UnitPrice:   req.UnitPrice,
		CostPrice:   req.CostPrice,
		SafetyStock: req.SafetyStock,
	}
	if product.Name == "" {
		return domain.Product{}, invalid("name", "is required")
	}
	if product.UnitPrice == 0 {
		product.UnitPrice = DefaultUnitPrice
	}
	if product.CostPrice == 0 {
		product.CostPrice = defaultCostPrice(req.UnitPrice)
	}

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.PutProduct(ctx, product)
	})
	if err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	s.committed(ctx, "product created", slog.String("product_id", product.ID), slog.String("name", product.Name))
	return product, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := s.check(req); err != nil {
		return domain.Product{}, err
	}

	var updated domain.Product
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		product, err := tx.GetProduct(ctx, strings.TrimSpace(id))
		if err != nil {
			return err
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return invalid("name", "must not be empty")
			}
			product.Name = name
		}
		if req.Category != nil {
			product.Category = defaultString(strings.TrimSpace(*req.Category), product.Category)
		}
		if req.Unit != nil {
			product.Unit = defaultString(strings.TrimSpace(*req.Unit), product.Unit)
		}
		if req.UnitPrice != nil {
			product.UnitPrice = *req.UnitPrice
		}
		if req.CostPrice != nil {
			product.CostPrice = *req.CostPrice
		}
		if req.SafetyStock != nil {
			product.SafetyStock = *req.SafetyStock
		}
		updated = product
		return tx.PutProduct(ctx, product)
	})
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product: %w", err)
	}
	s.committed(ctx, "product updated", slog.String("product_id", updated.ID))
	return updated, nil
}

// DeleteProduct removes the product only. Sales and ledger rows that refer
// to it are kept; reversing such a sale skips the missing product.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteProduct(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	s.committed(ctx, "product deleted", slog.String("product_id", id))
	return nil
}

// UpdateCustomer edits contact details. Balance is never patched directly.
func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	if err := s.check(req); err != nil {
		return domain.Customer{}, err
	}

	var updated domain.Customer
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		customer, err := tx.GetCustomer(ctx, strings.TrimSpace(id))
		if err != nil {
			return err
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return invalid("name", "must not be empty")
			}
			customer.Name = name
		}
		if req.Contact != nil {
			customer.Contact = strings.TrimSpace(*req.Contact)
		}
		if req.Address != nil {
			customer.Address = strings.TrimSpace(*req.Address)
		}
		updated = customer
		return tx.PutCustomer(ctx, customer)
	})
	if err != nil {
		return domain.Customer{}, fmt.Errorf("update customer: %w", err)
	}
	s.committed(ctx, "customer updated", slog.String("customer_id", updated.ID))
	return updated, nil
}

// DeleteCustomer removes the customer only. Their sales stay; reconciliation
// skips them and reversal leaves no balance to adjust.
func (s *Service) DeleteCustomer(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.DeleteCustomer(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	s.committed(ctx, "customer deleted", slog.String("customer_id", id))
	return nil
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
