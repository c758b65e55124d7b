package store

import (
	"context"
	"errors"
	"strings"

	"rekapin/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyProcessed = errors.New("message already processed")
	ErrContention       = errors.New("concurrent update conflict")
	ErrInvalidBooking   = errors.New("invalid booking")
)

// Repository is the persistence boundary for the booking ledger.
//
// RecordBooking is a single unit of work: the processed-message reservation,
// the transaction row and both summary increments commit together or not at
// all. A message id that is already in the ledger yields ErrAlreadyProcessed
// and writes nothing.
type Repository interface {
	IsProcessed(ctx context.Context, messageID string) (bool, error)
	RecordBooking(ctx context.Context, entry domain.BookingEntry) (*domain.Transaction, error)
	MarkRejected(ctx context.Context, msg domain.ProcessedMessage) error
	FindTransactionByMessageID(ctx context.Context, messageID string) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, date string, location string) ([]domain.Transaction, error)
	GetDailySummary(ctx context.Context, date string) (*domain.DailySummary, error)
	ListOperatorSummaries(ctx context.Context, date string) ([]domain.OperatorDailySummary, error)
	GetTotals(ctx context.Context) (domain.Totals, error)
}

// ValidateEntry rejects entries no implementation should persist.
func ValidateEntry(entry domain.BookingEntry) error {
	b := entry.Booking
	switch {
	case strings.TrimSpace(entry.MessageID) == "", strings.TrimSpace(entry.ChannelID) == "":
		return ErrInvalidBooking
	case entry.Date == "":
		return ErrInvalidBooking
	case b.OperatorName == "" || b.Unit == "":
		return ErrInvalidBooking
	case b.PaymentMethod != domain.PaymentCash && b.PaymentMethod != domain.PaymentTransfer:
		return ErrInvalidBooking
	case b.GrossAmount < 0 || b.Commission < 0:
		return ErrInvalidBooking
	case b.SkipFinancial && (b.GrossAmount != 0 || b.Commission != 0):
		return ErrInvalidBooking
	}
	return nil
}

// SameLocation compares locations the way channel display names are matched.
func SameLocation(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}
