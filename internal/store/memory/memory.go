package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"rekapin/backend/internal/domain"
	"rekapin/backend/internal/store"
	"rekapin/backend/internal/xid"
)

// Store keeps the ledger in process memory. A single mutex covers every map,
// so each RecordBooking is applied atomically.
type Store struct {
	mu                  sync.RWMutex
	processed           map[string]domain.ProcessedMessage
	transactionsByID    map[string]*domain.Transaction
	transactionsByMsgID map[string]*domain.Transaction
	transactions        []*domain.Transaction
	operatorSummaries   map[operatorKey]*domain.OperatorDailySummary
	dailySummaries      map[string]*domain.DailySummary
}

type operatorKey struct {
	date     string
	operator string
}

func New() *Store {
	return &Store{
		processed:           make(map[string]domain.ProcessedMessage),
		transactionsByID:    make(map[string]*domain.Transaction),
		transactionsByMsgID: make(map[string]*domain.Transaction),
		operatorSummaries:   make(map[operatorKey]*domain.OperatorDailySummary),
		dailySummaries:      make(map[string]*domain.DailySummary),
	}
}

func (s *Store) IsProcessed(_ context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.processed[messageID]
	return ok, nil
}

func (s *Store) RecordBooking(ctx context.Context, entry domain.BookingEntry) (*domain.Transaction, error) {
	if err := store.ValidateEntry(entry); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	at := entry.RecordedAt.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[entry.MessageID]; ok {
		return nil, store.ErrAlreadyProcessed
	}

	b := entry.Booking
	tx := &domain.Transaction{
		ID:            xid.New("trx"),
		MessageID:     entry.MessageID,
		ChannelID:     entry.ChannelID,
		Location:      b.Location,
		Unit:          b.Unit,
		CheckoutTime:  b.CheckoutTime,
		Duration:      b.Duration,
		PaymentMethod: b.PaymentMethod,
		TransferTag:   b.TransferTag,
		OperatorName:  b.OperatorName,
		GrossAmount:   b.GrossAmount,
		Commission:    b.Commission,
		NetAmount:     b.NetAmount(),
		SkipFinancial: b.SkipFinancial,
		Date:          entry.Date,
		CreatedAt:     at,
	}

	s.processed[entry.MessageID] = domain.ProcessedMessage{
		MessageID:   entry.MessageID,
		ChannelID:   entry.ChannelID,
		Status:      domain.MessageProcessed,
		ProcessedAt: at,
	}
	s.transactionsByID[tx.ID] = tx
	s.transactionsByMsgID[tx.MessageID] = tx
	s.transactions = append(s.transactions, tx)

	delta := b.SummaryDelta()
	key := operatorKey{date: entry.Date, operator: b.OperatorName}
	opSummary, ok := s.operatorSummaries[key]
	if !ok {
		opSummary = &domain.OperatorDailySummary{Date: entry.Date, OperatorName: b.OperatorName}
		s.operatorSummaries[key] = opSummary
	}
	opSummary.Apply(delta)
	opSummary.UpdatedAt = at

	daySummary, ok := s.dailySummaries[entry.Date]
	if !ok {
		daySummary = &domain.DailySummary{Date: entry.Date}
		s.dailySummaries[entry.Date] = daySummary
	}
	daySummary.Apply(delta)
	daySummary.UpdatedAt = at

	clone := *tx
	return &clone, nil
}

func (s *Store) MarkRejected(_ context.Context, msg domain.ProcessedMessage) error {
	if strings.TrimSpace(msg.MessageID) == "" {
		return store.ErrInvalidBooking
	}
	if msg.ProcessedAt.IsZero() {
		msg.ProcessedAt = time.Now().UTC()
	}
	msg.Status = domain.MessageRejected

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.processed[msg.MessageID]; ok {
		return store.ErrAlreadyProcessed
	}
	s.processed[msg.MessageID] = msg
	return nil
}

// ProcessedMessage exposes a ledger row for tests and diagnostics.
func (s *Store) ProcessedMessage(messageID string) (domain.ProcessedMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.processed[messageID]
	return msg, ok
}

func (s *Store) FindTransactionByMessageID(_ context.Context, messageID string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactionsByMsgID[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *tx
	return &clone, nil
}

func (s *Store) ListTransactions(_ context.Context, date string, location string) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transaction, 0)
	for _, tx := range s.transactions {
		if tx.Date != date {
			continue
		}
		if location != "" && !store.SameLocation(tx.Location, location) {
			continue
		}
		out = append(out, *tx)
	}
	return out, nil
}

func (s *Store) GetDailySummary(_ context.Context, date string) (*domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, ok := s.dailySummaries[date]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *summary
	return &clone, nil
}

func (s *Store) ListOperatorSummaries(_ context.Context, date string) ([]domain.OperatorDailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.OperatorDailySummary, 0)
	for key, summary := range s.operatorSummaries {
		if key.date == date {
			out = append(out, *summary)
		}
	}
	slices.SortFunc(out, func(a, b domain.OperatorDailySummary) int {
		return strings.Compare(a.OperatorName, b.OperatorName)
	})
	return out, nil
}

func (s *Store) GetTotals(_ context.Context) (domain.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals domain.Totals
	for _, summary := range s.dailySummaries {
		totals.BookingCount += summary.BookingCount
		totals.CashTotal += summary.CashTotal
		totals.TransferTotal += summary.TransferTotal
		totals.GrossTotal += summary.GrossTotal
		totals.CommissionTotal += summary.CommissionTotal
		totals.ActiveDays++
	}
	totals.NetTotal = totals.GrossTotal - totals.CommissionTotal

	operators := make(map[string]struct{})
	for key := range s.operatorSummaries {
		operators[key.operator] = struct{}{}
	}
	totals.OperatorCount = int64(len(operators))
	return totals, nil
}
