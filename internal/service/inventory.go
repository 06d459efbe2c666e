package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/store"
	"riceledger/backend/internal/xid"
)

// AddInventoryTransaction records a manual inbound delivery and raises stock.
func (s *Service) AddInventoryTransaction(ctx context.Context, req domain.InventoryTransactionRequest) (domain.InventoryTransaction, error) {
	if err := s.check(req); err != nil {
		return domain.InventoryTransaction{}, err
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = s.today()
	}

	var row domain.InventoryTransaction
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		product, err := tx.GetProduct(ctx, strings.TrimSpace(req.ProductID))
		if err != nil {
			return err
		}
		row = domain.InventoryTransaction{
			ID:          xid.New("inv"),
			ProductID:   product.ID,
			ProductName: product.Name,
			Date:        date,
			Quantity:    req.Quantity,
			UnitPrice:   req.UnitPrice,
			TotalCost:   int64(req.Quantity) * req.UnitPrice,
			Type:        domain.LedgerIn,
			Notes:       req.Notes,
			CreatedAt:   s.now().UTC(),
		}
		product.Stock += req.Quantity
		if err := tx.PutProduct(ctx, product); err != nil {
			return err
		}
		return tx.PutInventoryTransaction(ctx, row)
	})
	if err != nil {
		return domain.InventoryTransaction{}, fmt.Errorf("add inventory transaction: %w", err)
	}
	s.committed(ctx, "inventory received",
		slog.String("row_id", row.ID), slog.String("product_id", row.ProductID), slog.Int("quantity", row.Quantity))
	return row, nil
}

// UpdateInventoryTransaction edits a manual inbound row and moves stock by
// the quantity difference. Outbound rows belong to their sale.
func (s *Service) UpdateInventoryTransaction(ctx context.Context, id string, update domain.InventoryTransactionUpdate) (domain.InventoryTransaction, error) {
	if err := s.check(update); err != nil {
		return domain.InventoryTransaction{}, err
	}

	var row domain.InventoryTransaction
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		current, err := s.manualRow(ctx, tx, id)
		if err != nil {
			return err
		}
		row = current
		if update.Date != nil {
			row.Date = strings.TrimSpace(*update.Date)
		}
		if update.Quantity != nil {
			row.Quantity = *update.Quantity
		}
		if update.UnitPrice != nil {
			row.UnitPrice = *update.UnitPrice
		}
		if update.Notes != nil {
			row.Notes = *update.Notes
		}
		row.TotalCost = int64(row.Quantity) * row.UnitPrice

		if err := s.shiftStock(ctx, tx, row.ProductID, row.Quantity-current.Quantity); err != nil {
			return err
		}
		return tx.PutInventoryTransaction(ctx, row)
	})
	if err != nil {
		return domain.InventoryTransaction{}, fmt.Errorf("update inventory transaction: %w", err)
	}
	s.committed(ctx, "inventory row updated", slog.String("row_id", row.ID), slog.Int("quantity", row.Quantity))
	return row, nil
}

func (s *Service) DeleteInventoryTransaction(ctx context.Context, id string) error {
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		row, err := s.manualRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.shiftStock(ctx, tx, row.ProductID, -row.Quantity); err != nil {
			return err
		}
		return tx.DeleteInventoryTransaction(ctx, row.ID)
	})
	if err != nil {
		return fmt.Errorf("delete inventory transaction: %w", err)
	}
	s.committed(ctx, "inventory row deleted", slog.String("row_id", id))
	return nil
}

func (s *Service) ListInventoryTransactionsByProduct(ctx context.Context, productID string) ([]domain.InventoryTransaction, error) {
	return s.repo.ListInventoryTransactionsByProduct(ctx, strings.TrimSpace(productID))
}

// ProductInventory returns a product with its ledger, newest first, and the
// inbound/outbound summary.
func (s *Service) ProductInventory(ctx context.Context, productID string) (domain.ProductInventory, error) {
	productID = strings.TrimSpace(productID)
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.ProductInventory{}, err
	}
	rows, err := s.repo.ListInventoryTransactionsByProduct(ctx, productID)
	if err != nil {
		return domain.ProductInventory{}, err
	}
	if rows == nil {
		rows = []domain.InventoryTransaction{}
	}
	return domain.ProductInventory{
		Product:      product,
		Transactions: rows,
		Summary:      summarizeLedger(rows),
	}, nil
}

func (s *Service) manualRow(ctx context.Context, tx store.Tx, id string) (domain.InventoryTransaction, error) {
	row, err := tx.GetInventoryTransaction(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.InventoryTransaction{}, err
	}
	if row.Type != domain.LedgerIn || row.RelatedSaleID != "" {
		return domain.InventoryTransaction{}, fmt.Errorf("inventory transaction %s: %w", row.ID, store.ErrLedgerRowLocked)
	}
	return row, nil
}

// shiftStock applies delta to a product. A manual correction may not drive
// stock below zero; a missing product is left alone.
func (s *Service) shiftStock(ctx context.Context, tx store.Tx, productID string, delta int) error {
	if delta == 0 {
		return nil
	}
	product, err := tx.GetProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("ledger row refers to missing product", slog.String("product_id", productID))
		return nil
	}
	if err != nil {
		return err
	}
	if product.Stock+delta < 0 {
		return &store.InsufficientStockError{Product: product.Name, Available: product.Stock, Requested: -delta}
	}
	product.Stock += delta
	return tx.PutProduct(ctx, product)
}

func summarizeLedger(rows []domain.InventoryTransaction) domain.InventorySummary {
	var summary domain.InventorySummary
	priceSum := decimal.Zero
	for _, row := range rows {
		switch row.Type {
		case domain.LedgerIn:
			summary.TotalIn += row.Quantity
			summary.TotalInCost += row.TotalCost
			summary.InCount++
			priceSum = priceSum.Add(decimal.NewFromInt(row.UnitPrice))
		case domain.LedgerOut:
			summary.TotalOut += row.Quantity
			summary.OutCount++
		}
	}
	if summary.InCount > 0 {
		summary.AvgInPrice = priceSum.Div(decimal.NewFromInt(int64(summary.InCount))).Round(0).IntPart()
	}
	return summary
}
