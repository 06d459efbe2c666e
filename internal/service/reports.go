package service

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"riceledger/backend/internal/domain"
)

const (
	DefaultTopCustomers = 5
	maxTopCustomers     = 100
	weeklyDays          = 7
)

// cachedReport serves key from the report cache, building it at most once
// per cache generation across concurrent callers.
func cachedReport[T any](ctx context.Context, s *Service, key string, build func(context.Context) (T, error)) (T, error) {
	var zero T
	var cached T
	hit, err := s.reports.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("report cache read failed", slog.String("key", key), slog.Any("error", err))
	} else if hit {
		return cached, nil
	}

	generation := s.generation.Load()
	flightKey := key + "#" + strconv.FormatUint(generation, 10)
	resultCh := s.flight.DoChan(flightKey, func() (any, error) {
		value, err := build(ctx)
		if err != nil {
			return nil, err
		}
		// A mutation committed while building makes the value stale.
		if s.generation.Load() == generation {
			if err := s.reports.Set(ctx, key, value, s.reportTTL); err != nil {
				s.logger.Warn("report cache write failed", slog.String("key", key), slog.Any("error", err))
			}
		}
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (s *Service) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	today := s.today()
	return cachedReport(ctx, s, "dashboard:"+today, func(ctx context.Context) (domain.DashboardStats, error) {
		sales, err := s.repo.ListSales(ctx)
		if err != nil {
			return domain.DashboardStats{}, err
		}
		customers, err := s.repo.ListCustomers(ctx)
		if err != nil {
			return domain.DashboardStats{}, err
		}
		products, err := s.repo.ListProducts(ctx)
		if err != nil {
			return domain.DashboardStats{}, err
		}

		var stats domain.DashboardStats
		for _, sale := range sales {
			if sale.Date == today {
				stats.TodaySales += sale.TotalAmount
				stats.TodayOrders++
			}
		}
		for _, customer := range customers {
			stats.TotalUnpaid += customer.Balance
		}
		for _, product := range products {
			if product.IsLowStock() {
				stats.LowStockCount++
			}
		}
		return stats, nil
	})
}

// TopCustomers ranks customers by lifetime sales. limit <= 0 means the default.
func (s *Service) TopCustomers(ctx context.Context, limit int) ([]domain.TopCustomer, error) {
	if limit <= 0 {
		limit = DefaultTopCustomers
	}
	limit = min(limit, maxTopCustomers)

	return cachedReport(ctx, s, "top-customers:"+strconv.Itoa(limit), func(ctx context.Context) ([]domain.TopCustomer, error) {
		sales, err := s.repo.ListSales(ctx)
		if err != nil {
			return nil, err
		}
		customers, err := s.repo.ListCustomers(ctx)
		if err != nil {
			return nil, err
		}

		ranked := make([]domain.TopCustomer, 0, len(customers))
		index := make(map[string]int, len(customers))
		for _, customer := range customers {
			index[customer.ID] = len(ranked)
			ranked = append(ranked, domain.TopCustomer{
				ID:           customer.ID,
				Name:         customer.Name,
				UnpaidAmount: customer.Balance,
			})
		}
		for _, sale := range sales {
			i, ok := index[sale.CustomerID]
			if !ok {
				continue
			}
			ranked[i].OrderCount++
			ranked[i].TotalSales += sale.TotalAmount
		}

		slices.SortStableFunc(ranked, func(a, b domain.TopCustomer) int {
			return cmp.Or(cmp.Compare(b.TotalSales, a.TotalSales), cmp.Compare(a.Name, b.Name))
		})
		if len(ranked) > limit {
			ranked = ranked[:limit]
		}
		return ranked, nil
	})
}

// WeeklySales returns the last seven days ending today, oldest first,
// including days without sales.
func (s *Service) WeeklySales(ctx context.Context) ([]domain.DailySales, error) {
	now := s.now()
	today := now.Format(domain.DateLayout)
	return cachedReport(ctx, s, "weekly:"+today, func(ctx context.Context) ([]domain.DailySales, error) {
		sales, err := s.repo.ListSales(ctx)
		if err != nil {
			return nil, err
		}

		days := make([]domain.DailySales, 0, weeklyDays)
		position := make(map[string]int, weeklyDays)
		for i := weeklyDays - 1; i >= 0; i-- {
			day := now.AddDate(0, 0, -i)
			date := day.Format(domain.DateLayout)
			position[date] = len(days)
			days = append(days, domain.DailySales{Date: date, Name: day.Format("01/02")})
		}
		for _, sale := range sales {
			if i, ok := position[sale.Date]; ok {
				days[i].Sales += sale.TotalAmount
			}
		}
		return days, nil
	})
}

// Backup is a point-in-time export of every collection. It is never cached.
func (s *Service) Backup(ctx context.Context) (domain.Backup, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return domain.Backup{}, err
	}
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.Backup{}, err
	}
	sales, err := s.repo.ListSales(ctx)
	if err != nil {
		return domain.Backup{}, err
	}
	ledger, err := s.repo.ListInventoryTransactions(ctx)
	if err != nil {
		return domain.Backup{}, err
	}
	return domain.Backup{
		Timestamp:             s.now().UTC().Truncate(time.Second),
		Customers:             nonNil(customers),
		Products:              nonNil(products),
		Sales:                 nonNil(sales),
		InventoryTransactions: nonNil(ledger),
	}, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
