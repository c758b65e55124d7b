package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rekapin/backend/internal/cache"
	"rekapin/backend/internal/domain"
	"rekapin/backend/internal/parser"
	"rekapin/backend/internal/store"
)

const displayDateLayout = "02/01/2006"

// HandleCommand answers a chat command. A command sent from a group only
// sees that group's location; one without a channel name sees every location.
func (s *Service) HandleCommand(ctx context.Context, cmd domain.CommandRequest) (domain.RecapReport, error) {
	req, ok := parser.ParseRecapCommand(cmd.Text)
	if !ok {
		return domain.RecapReport{}, ErrInvalidCommand
	}
	return s.Recap(ctx, *req, cmd.ChannelName)
}

// Recap builds the report for one business date. Without an explicit date
// the current date in the reporting timezone is used.
func (s *Service) Recap(ctx context.Context, req domain.RecapRequest, location string) (domain.RecapReport, error) {
	date := s.businessDate(s.now())
	if req.HasDate() {
		date = req.Date.Format(domain.DateLayout)
	}
	location = strings.Join(strings.Fields(location), " ")

	key := cache.RecapKey(date, location)
	if cached, ok, err := s.recapCache.Get(ctx, key); err != nil {
		s.logger.Warn("recap cache read failed", slog.String("key", key), slog.String("error", err.Error()))
	} else if ok {
		return *cached, nil
	}

	generation := s.recapGeneration(date)

	txs, err := s.repo.ListTransactions(ctx, date, location)
	if err != nil {
		return domain.RecapReport{}, persistenceError("list transactions", err)
	}

	var summary domain.DailySummary
	var operators []domain.OperatorDailySummary
	if location == "" {
		summary, operators, err = s.storedSummaries(ctx, date)
		if err != nil {
			return domain.RecapReport{}, err
		}
	} else {
		summary, operators = summarize(date, txs)
	}

	report := domain.RecapReport{
		Date:          date,
		DisplayDate:   displayDate(date),
		Location:      location,
		Summary:       summary,
		Operators:     operators,
		Locations:     locationTotals(txs),
		NetTotal:      summary.GrossTotal - summary.CommissionTotal,
		AverageTicket: averageTicket(summary.GrossTotal, txs),
		GeneratedAt:   s.now().UTC(),
	}

	s.storeRecap(ctx, key, generation, &report)
	return report, nil
}

func (s *Service) recapGeneration(date string) uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generations[date]
}

// storeRecap caches the report unless a booking for its date was recorded
// after the report's rows were read.
func (s *Service) storeRecap(ctx context.Context, key string, generation uint64, report *domain.RecapReport) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	if s.generations[report.Date] != generation {
		s.logger.Debug("recap went stale while building, not cached", slog.String("key", key))
		return
	}
	if err := s.recapCache.Set(ctx, key, report, s.recapCacheTTL); err != nil {
		s.logger.Warn("recap cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *Service) invalidateRecaps(ctx context.Context, date string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.generations[date]++
	if err := s.recapCache.Invalidate(ctx, date); err != nil {
		s.logger.Warn("recap cache invalidation failed",
			slog.String("date", date),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) storedSummaries(ctx context.Context, date string) (domain.DailySummary, []domain.OperatorDailySummary, error) {
	summary := domain.DailySummary{Date: date}
	stored, err := s.repo.GetDailySummary(ctx, date)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return domain.DailySummary{}, nil, persistenceError("load daily summary", err)
	default:
		summary = *stored
	}

	operators, err := s.repo.ListOperatorSummaries(ctx, date)
	if err != nil {
		return domain.DailySummary{}, nil, persistenceError("list operator summaries", err)
	}
	return summary, operators, nil
}

// summarize rebuilds the summaries from transaction rows, for location-scoped recaps.
func summarize(date string, txs []domain.Transaction) (domain.DailySummary, []domain.OperatorDailySummary) {
	summary := domain.DailySummary{Date: date}
	byOperator := make(map[string]*domain.OperatorDailySummary)
	for _, tx := range txs {
		delta := tx.Booking().SummaryDelta()
		summary.Apply(delta)
		if tx.CreatedAt.After(summary.UpdatedAt) {
			summary.UpdatedAt = tx.CreatedAt
		}

		op, ok := byOperator[tx.OperatorName]
		if !ok {
			op = &domain.OperatorDailySummary{Date: date, OperatorName: tx.OperatorName}
			byOperator[tx.OperatorName] = op
		}
		op.Apply(delta)
		if tx.CreatedAt.After(op.UpdatedAt) {
			op.UpdatedAt = tx.CreatedAt
		}
	}

	operators := make([]domain.OperatorDailySummary, 0, len(byOperator))
	for _, op := range byOperator {
		operators = append(operators, *op)
	}
	sort.Slice(operators, func(i, j int) bool {
		return operators[i].OperatorName < operators[j].OperatorName
	})
	return summary, operators
}

func locationTotals(txs []domain.Transaction) []domain.LocationTotal {
	index := make(map[string]int)
	totals := make([]domain.LocationTotal, 0)
	for _, tx := range txs {
		key := strings.ToLower(tx.Location)
		i, ok := index[key]
		if !ok {
			i = len(totals)
			index[key] = i
			totals = append(totals, domain.LocationTotal{Location: tx.Location})
		}
		totals[i].BookingCount++
		totals[i].GrossTotal += tx.Booking().SummaryDelta().Gross()
	}
	sort.Slice(totals, func(i, j int) bool {
		return totals[i].Location < totals[j].Location
	})
	return totals
}

// averageTicket divides gross by the bookings that carry money.
func averageTicket(gross int64, txs []domain.Transaction) decimal.Decimal {
	var paid int64
	for _, tx := range txs {
		if !tx.SkipFinancial {
			paid++
		}
	}
	if paid == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(gross).Div(decimal.NewFromInt(paid)).Round(0)
}

func displayDate(date string) string {
	day, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return date
	}
	return day.Format(displayDateLayout)
}
