package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"rekapin/backend/internal/domain"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	args := m.Called(ctx, messageID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) RecordBooking(ctx context.Context, entry domain.BookingEntry) (*domain.Transaction, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockRepository) MarkRejected(ctx context.Context, msg domain.ProcessedMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockRepository) FindTransactionByMessageID(ctx context.Context, messageID string) (*domain.Transaction, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Transaction), args.Error(1)
}

func (m *MockRepository) ListTransactions(ctx context.Context, date string, location string) ([]domain.Transaction, error) {
	args := m.Called(ctx, date, location)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Transaction), args.Error(1)
}

func (m *MockRepository) GetDailySummary(ctx context.Context, date string) (*domain.DailySummary, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DailySummary), args.Error(1)
}

func (m *MockRepository) ListOperatorSummaries(ctx context.Context, date string) ([]domain.OperatorDailySummary, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OperatorDailySummary), args.Error(1)
}

func (m *MockRepository) GetTotals(ctx context.Context) (domain.Totals, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Totals), args.Error(1)
}
