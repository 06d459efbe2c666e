package service

import (
	"context"
	"fmt"
	"log/slog"

	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/store"
)

const reconcileMessage = "모든 미수금이 재계산되었습니다."

// ResetAllBalances rebuilds every customer balance from the UNPAID sales.
// Sales that point at a deleted customer are counted and skipped.
func (s *Service) ResetAllBalances(ctx context.Context) (domain.ReconcileResult, error) {
	var result domain.ReconcileResult
	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		customers, err := tx.ListCustomers(ctx)
		if err != nil {
			return err
		}
		sales, err := tx.ListSales(ctx)
		if err != nil {
			return err
		}

		owed := make(map[string]int64, len(customers))
		for _, customer := range customers {
			owed[customer.ID] = 0
		}
		skipped := 0
		for _, sale := range sales {
			if sale.Status != domain.SaleStatusUnpaid {
				continue
			}
			if _, ok := owed[sale.CustomerID]; !ok {
				skipped++
				s.logger.Warn("reconciliation skipped sale without customer",
					slog.String("sale_id", sale.ID), slog.String("customer_id", sale.CustomerID))
				continue
			}
			owed[sale.CustomerID] += sale.TotalAmount
		}

		updated := 0
		for _, customer := range customers {
			if customer.Balance == owed[customer.ID] {
				continue
			}
			customer.Balance = owed[customer.ID]
			if err := tx.PutCustomer(ctx, customer); err != nil {
				return err
			}
			updated++
		}

		result = domain.ReconcileResult{
			Success:          true,
			Message:          reconcileMessage,
			CustomersUpdated: updated,
			SkippedSales:     skipped,
		}
		return nil
	})
	s.metrics.ObserveReconciliation(err)
	if err != nil {
		return domain.ReconcileResult{Success: false, Message: err.Error()}, fmt.Errorf("reset balances: %w", err)
	}
	s.committed(ctx, "balances reconciled",
		slog.Int("customers_updated", result.CustomersUpdated), slog.Int("skipped_sales", result.SkippedSales))
	return result, nil
}
