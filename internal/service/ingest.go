package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"rekapin/backend/internal/domain"
	"rekapin/backend/internal/parser"
	"rekapin/backend/internal/store"
)

// Ingest classifies one inbound message and records it at most once.
//
// Text that is not shaped like a booking attempt is ignored without touching
// the ledger. A message id already in the ledger short-circuits before
// parsing. Valid bookings are recorded; every other verdict is written to the
// ledger as rejected so a redelivery does not trigger a second reply.
func (s *Service) Ingest(ctx context.Context, msg domain.InboundMessage) (domain.IngestResult, error) {
	msg.MessageID = strings.TrimSpace(msg.MessageID)
	msg.ChannelID = strings.TrimSpace(msg.ChannelID)
	if msg.MessageID == "" || msg.ChannelID == "" {
		return domain.IngestResult{}, ErrInvalidMessage
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now()
	}

	if !parser.LooksLikeBooking(msg.Text) {
		return domain.IngestResult{Outcome: domain.OutcomeIgnored, Verdict: domain.WrongFormat{}}, nil
	}

	processed, err := s.repo.IsProcessed(ctx, msg.MessageID)
	if err != nil {
		return domain.IngestResult{}, persistenceError("check ledger", err)
	}
	if processed {
		s.logger.Info("duplicate delivery skipped", slog.String("message_id", msg.MessageID), actorAttr(ctx))
		return domain.IngestResult{Outcome: domain.OutcomeDuplicate}, nil
	}

	verdict := parser.ParseBooking(msg.Text, msg.ChannelName)
	switch v := verdict.(type) {
	case domain.Valid:
		return s.record(ctx, msg, v)
	case domain.WrongFormat, domain.WrongPrefix, domain.MissingField:
		return s.reject(ctx, msg, verdict)
	default:
		return domain.IngestResult{}, fmt.Errorf("unexpected verdict %T", verdict)
	}
}

func (s *Service) record(ctx context.Context, msg domain.InboundMessage, valid domain.Valid) (domain.IngestResult, error) {
	entry := domain.BookingEntry{
		MessageID:  msg.MessageID,
		ChannelID:  msg.ChannelID,
		Date:       s.businessDate(msg.ReceivedAt),
		Booking:    valid.Booking,
		RecordedAt: msg.ReceivedAt,
	}

	tx, err := s.recordWithRetry(ctx, entry)
	if errors.Is(err, store.ErrAlreadyProcessed) {
		s.logger.Info("duplicate delivery skipped", slog.String("message_id", msg.MessageID), actorAttr(ctx))
		return domain.IngestResult{Outcome: domain.OutcomeDuplicate, Verdict: valid}, nil
	}
	if err != nil {
		s.logger.Error("record booking failed",
			slog.String("message_id", msg.MessageID),
			slog.String("error", err.Error()),
		)
		return domain.IngestResult{}, persistenceError("record booking "+msg.MessageID, err)
	}

	s.invalidateRecaps(ctx, entry.Date)

	s.logger.Info("booking recorded",
		slog.String("message_id", msg.MessageID),
		slog.String("transaction_id", tx.ID),
		slog.String("location", tx.Location),
		slog.String("operator", tx.OperatorName),
		slog.Int64("gross_amount", tx.GrossAmount),
		slog.Bool("skip_financial", tx.SkipFinancial),
		actorAttr(ctx),
	)
	return domain.IngestResult{Outcome: domain.OutcomeRecorded, Verdict: valid, TransactionID: tx.ID}, nil
}

func (s *Service) reject(ctx context.Context, msg domain.InboundMessage, verdict domain.Verdict) (domain.IngestResult, error) {
	err := s.repo.MarkRejected(ctx, domain.ProcessedMessage{
		MessageID:   msg.MessageID,
		ChannelID:   msg.ChannelID,
		Status:      domain.MessageRejected,
		ProcessedAt: msg.ReceivedAt,
	})
	if errors.Is(err, store.ErrAlreadyProcessed) {
		return domain.IngestResult{Outcome: domain.OutcomeDuplicate, Verdict: verdict}, nil
	}
	if err != nil {
		return domain.IngestResult{}, persistenceError("mark rejected "+msg.MessageID, err)
	}

	attrs := []any{
		slog.String("message_id", msg.MessageID),
		slog.String("channel", msg.ChannelName),
		slog.String("verdict", string(verdict.Kind())),
		actorAttr(ctx),
	}
	if missing, ok := verdict.(domain.MissingField); ok {
		attrs = append(attrs, slog.String("missing_field", missing.Field))
	}
	s.logger.Warn("booking rejected", attrs...)
	return domain.IngestResult{Outcome: domain.OutcomeRejected, Verdict: verdict}, nil
}

// recordWithRetry retries only on contention, backing off linearly.
func (s *Service) recordWithRetry(ctx context.Context, entry domain.BookingEntry) (*domain.Transaction, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		tx, err := s.repo.RecordBooking(ctx, entry)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, store.ErrContention) {
			return nil, err
		}
		lastErr = err
		if attempt == s.maxAttempts {
			break
		}

		s.logger.Warn("booking contention, retrying",
			slog.String("message_id", entry.MessageID),
			slog.Int("attempt", attempt),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * s.retryBackoff):
		}
	}
	return nil, lastErr
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
