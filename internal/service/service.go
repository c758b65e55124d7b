package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"rekapin/backend/internal/cache"
	"rekapin/backend/internal/domain"
	"rekapin/backend/internal/store"
)

var (
	ErrInvalidMessage = errors.New("message_id and channel_id are required")
	ErrInvalidCommand = errors.New("invalid recap command")
	// ErrPersistence wraps storage failures. The message was not marked
	// processed and the caller should redeliver it.
	ErrPersistence = errors.New("persistence failure")
)

const (
	defaultMaxAttempts   = 3
	defaultRetryBackoff  = 50 * time.Millisecond
	defaultRecapCacheTTL = time.Minute
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Location          *time.Location
	RecapCache        cache.RecapCache
	RecapCacheTTL     time.Duration
	MaxRecordAttempts int
	RetryBackoff      time.Duration
	Logger            *slog.Logger
	Now               func() time.Time
}

type Service struct {
	repo          store.Repository
	recapCache    cache.RecapCache
	recapCacheTTL time.Duration
	location      *time.Location
	maxAttempts   int
	retryBackoff  time.Duration
	logger        *slog.Logger
	now           func() time.Time

	// cacheMu orders recap cache writes against invalidations. generations
	// counts invalidations per business date.
	cacheMu     sync.Mutex
	generations map[string]uint64
}

func New(repo store.Repository, opts Options) *Service {
	s := &Service{
		repo:          repo,
		recapCache:    opts.RecapCache,
		recapCacheTTL: opts.RecapCacheTTL,
		location:      opts.Location,
		maxAttempts:   opts.MaxRecordAttempts,
		retryBackoff:  opts.RetryBackoff,
		logger:        opts.Logger,
		now:           opts.Now,
		generations:   make(map[string]uint64),
	}
	if s.recapCache == nil {
		s.recapCache = cache.NoopRecapCache{}
	}
	if s.recapCacheTTL <= 0 {
		s.recapCacheTTL = defaultRecapCacheTTL
	}
	if s.location == nil {
		s.location = time.UTC
	}
	if s.maxAttempts < 1 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.retryBackoff <= 0 {
		s.retryBackoff = defaultRetryBackoff
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// businessDate assigns a moment to its calendar date in the reporting timezone.
func (s *Service) businessDate(at time.Time) string {
	return at.In(s.location).Format(domain.DateLayout)
}

func (s *Service) Totals(ctx context.Context) (domain.Totals, error) {
	totals, err := s.repo.GetTotals(ctx)
	if err != nil {
		return domain.Totals{}, persistenceError("load totals", err)
	}
	return totals, nil
}

func actorAttr(ctx context.Context) slog.Attr {
	if actor, ok := ActorFromContext(ctx); ok {
		return slog.String("client_id", actor.ClientID)
	}
	return slog.String("client_id", "")
}
