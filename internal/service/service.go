package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"riceledger/backend/internal/cache"
	"riceledger/backend/internal/domain"
	"riceledger/backend/internal/metrics"
	"riceledger/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	reportTTL time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
	validate  *validator.Validate

	flight     singleflight.Group
	generation atomic.Uint64

	now func() time.Time
}

// New wires the ledger service. reports, m and logger may be nil.
func New(repo store.Repository, reports cache.ReportCache, reportTTL time.Duration, m *metrics.Metrics, logger *slog.Logger) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		reportTTL: reportTTL,
		metrics:   m,
		logger:    logger.With(slog.String("component", "service")),
		validate:  newValidator(),
		now:       time.Now,
	}
}

func (s *Service) today() string {
	return s.now().Format(domain.DateLayout)
}

// committed runs after every successful mutation.
func (s *Service) committed(ctx context.Context, op string, attrs ...slog.Attr) {
	s.generation.Add(1)
	if err := s.reports.Invalidate(ctx); err != nil {
		s.logger.Warn("report cache invalidation failed", slog.String("op", op), slog.Any("error", err))
	}
	if actor, ok := ActorFromContext(ctx); ok {
		attrs = append(attrs, slog.String("actor", actor.Username))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, op, attrs...)
}
