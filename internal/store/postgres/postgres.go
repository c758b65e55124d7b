package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"rekapin/backend/internal/domain"
	"rekapin/backend/internal/store"
	"rekapin/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_messages WHERE message_id = $1)
	`, messageID).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// RecordBooking reserves the message id and applies the booking in one
// transaction. Summary rows are incremented in place by the upserts, so
// concurrent bookings for the same operator and date queue on the row lock
// instead of overwriting each other.
func (s *Store) RecordBooking(ctx context.Context, entry domain.BookingEntry) (*domain.Transaction, error) {
	if err := store.ValidateEntry(entry); err != nil {
		return nil, err
	}
	day, err := time.Parse(domain.DateLayout, entry.Date)
	if err != nil {
		return nil, store.ErrInvalidBooking
	}

	at := entry.RecordedAt.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}

	b := entry.Booking
	tx := domain.Transaction{
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

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = pgTx.Rollback() }()

	res, err := pgTx.ExecContext(ctx, `
		INSERT INTO processed_messages (message_id, channel_id, status, processed_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (message_id) DO NOTHING
	`, entry.MessageID, entry.ChannelID, domain.MessageProcessed, at)
	if err != nil {
		return nil, classify(err)
	}
	reserved, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if reserved == 0 {
		return nil, store.ErrAlreadyProcessed
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, message_id, channel_id, location, unit, checkout_time, duration,
			payment_method, transfer_tag, operator_name, gross_amount, commission,
			net_amount, skip_financial, business_date, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, tx.ID, tx.MessageID, tx.ChannelID, tx.Location, tx.Unit, tx.CheckoutTime, tx.Duration,
		tx.PaymentMethod, tx.TransferTag, tx.OperatorName, tx.GrossAmount, tx.Commission,
		tx.NetAmount, tx.SkipFinancial, day, tx.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}

	delta := b.SummaryDelta()
	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO operator_daily_summaries (
			summary_date, operator_name, booking_count, cash_total, transfer_total, commission_total, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (summary_date, operator_name)
		DO UPDATE SET
			booking_count = operator_daily_summaries.booking_count + EXCLUDED.booking_count,
			cash_total = operator_daily_summaries.cash_total + EXCLUDED.cash_total,
			transfer_total = operator_daily_summaries.transfer_total + EXCLUDED.transfer_total,
			commission_total = operator_daily_summaries.commission_total + EXCLUDED.commission_total,
			updated_at = EXCLUDED.updated_at
	`, day, b.OperatorName, delta.Bookings, delta.Cash, delta.Transfer, delta.Commission, at)
	if err != nil {
		return nil, classify(err)
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO daily_summaries (
			summary_date, booking_count, cash_total, transfer_total, gross_total, commission_total, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (summary_date)
		DO UPDATE SET
			booking_count = daily_summaries.booking_count + EXCLUDED.booking_count,
			cash_total = daily_summaries.cash_total + EXCLUDED.cash_total,
			transfer_total = daily_summaries.transfer_total + EXCLUDED.transfer_total,
			gross_total = daily_summaries.gross_total + EXCLUDED.gross_total,
			commission_total = daily_summaries.commission_total + EXCLUDED.commission_total,
			updated_at = EXCLUDED.updated_at
	`, day, delta.Bookings, delta.Cash, delta.Transfer, delta.Gross(), delta.Commission, at)
	if err != nil {
		return nil, classify(err)
	}

	if err := pgTx.Commit(); err != nil {
		return nil, classify(err)
	}

	return &tx, nil
}

func (s *Store) MarkRejected(ctx context.Context, msg domain.ProcessedMessage) error {
	if strings.TrimSpace(msg.MessageID) == "" {
		return store.ErrInvalidBooking
	}
	at := msg.ProcessedAt.UTC()
	if at.IsZero() {
		at = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_messages (message_id, channel_id, status, processed_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (message_id) DO NOTHING
	`, msg.MessageID, msg.ChannelID, domain.MessageRejected, at)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrAlreadyProcessed
	}
	return nil
}

const transactionColumns = `
	id, message_id, channel_id, location, unit, checkout_time, duration,
	payment_method, transfer_tag, operator_name, gross_amount, commission,
	net_amount, skip_financial, business_date, created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (domain.Transaction, error) {
	var tx domain.Transaction
	var day time.Time
	err := row.Scan(&tx.ID, &tx.MessageID, &tx.ChannelID, &tx.Location, &tx.Unit, &tx.CheckoutTime,
		&tx.Duration, &tx.PaymentMethod, &tx.TransferTag, &tx.OperatorName, &tx.GrossAmount,
		&tx.Commission, &tx.NetAmount, &tx.SkipFinancial, &day, &tx.CreatedAt)
	if err != nil {
		return domain.Transaction{}, err
	}
	tx.Date = day.Format(domain.DateLayout)
	tx.CreatedAt = tx.CreatedAt.UTC()
	return tx, nil
}

func (s *Store) FindTransactionByMessageID(ctx context.Context, messageID string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE message_id = $1`, messageID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, date string, location string) ([]domain.Transaction, error) {
	day, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE business_date = $1`
	args := []any{day}
	if location = normalizeLocation(location); location != "" {
		query += ` AND lower(location) = $2`
		args = append(args, location)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetDailySummary(ctx context.Context, date string) (*domain.DailySummary, error) {
	day, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}

	summary := domain.DailySummary{Date: date}
	err = s.db.QueryRowContext(ctx, `
		SELECT booking_count, cash_total, transfer_total, gross_total, commission_total, updated_at
		FROM daily_summaries
		WHERE summary_date = $1
	`, day).Scan(&summary.BookingCount, &summary.CashTotal, &summary.TransferTotal,
		&summary.GrossTotal, &summary.CommissionTotal, &summary.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *Store) ListOperatorSummaries(ctx context.Context, date string) ([]domain.OperatorDailySummary, error) {
	day, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT operator_name, booking_count, cash_total, transfer_total, commission_total, updated_at
		FROM operator_daily_summaries
		WHERE summary_date = $1
		ORDER BY operator_name
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.OperatorDailySummary, 0, 8)
	for rows.Next() {
		summary := domain.OperatorDailySummary{Date: date}
		if err := rows.Scan(&summary.OperatorName, &summary.BookingCount, &summary.CashTotal,
			&summary.TransferTotal, &summary.CommissionTotal, &summary.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetTotals(ctx context.Context) (domain.Totals, error) {
	var totals domain.Totals
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(booking_count), 0),
			COALESCE(SUM(cash_total), 0),
			COALESCE(SUM(transfer_total), 0),
			COALESCE(SUM(gross_total), 0),
			COALESCE(SUM(commission_total), 0),
			COUNT(*),
			(SELECT COUNT(DISTINCT operator_name) FROM operator_daily_summaries)
		FROM daily_summaries
	`).Scan(&totals.BookingCount, &totals.CashTotal, &totals.TransferTotal, &totals.GrossTotal,
		&totals.CommissionTotal, &totals.ActiveDays, &totals.OperatorCount)
	if err != nil {
		return domain.Totals{}, err
	}
	totals.NetTotal = totals.GrossTotal - totals.CommissionTotal
	return totals, nil
}

func normalizeLocation(location string) string {
	return strings.ToLower(strings.Join(strings.Fields(location), " "))
}

// classify maps postgres error codes onto the store sentinels.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", store.ErrAlreadyProcessed, pgErr.ConstraintName)
	case "40001", "40P01":
		return fmt.Errorf("%w: %s", store.ErrContention, pgErr.Message)
	default:
		return err
	}
}
