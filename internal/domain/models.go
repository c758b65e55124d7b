package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used for summary and transaction dates.
const DateLayout = "2006-01-02"

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "Cash"
	PaymentTransfer PaymentMethod = "Transfer"
)

type MessageStatus string

const (
	MessageProcessed MessageStatus = "processed"
	MessageRejected  MessageStatus = "rejected"
)

// ParsedBooking is the typed content of a valid booking message. Amounts are
// whole rupiah, already scaled from the thousands written in the chat.
type ParsedBooking struct {
	Location      string        `json:"location"`
	Unit          string        `json:"unit"`
	CheckoutTime  string        `json:"checkout_time"`
	Duration      string        `json:"duration"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	TransferTag   string        `json:"transfer_tag,omitempty"`
	OperatorName  string        `json:"operator_name"`
	GrossAmount   int64         `json:"gross_amount"`
	Commission    int64         `json:"commission"`
	SkipFinancial bool          `json:"skip_financial"`
}

func (b ParsedBooking) NetAmount() int64 {
	return b.GrossAmount - b.Commission
}

// Delta is the increment a single booking contributes to the summaries.
type Delta struct {
	Bookings   int64
	Cash       int64
	Transfer   int64
	Commission int64
}

func (d Delta) Gross() int64 {
	return d.Cash + d.Transfer
}

// SummaryDelta returns the summary increment for the booking. Skip-financial
// bookings still count as one booking but contribute no money.
func (b ParsedBooking) SummaryDelta() Delta {
	delta := Delta{Bookings: 1}
	if b.SkipFinancial {
		return delta
	}
	if b.PaymentMethod == PaymentCash {
		delta.Cash = b.GrossAmount
	} else {
		delta.Transfer = b.GrossAmount
	}
	delta.Commission = b.Commission
	return delta
}

// InboundMessage is a chat message as delivered by the transport bridge.
type InboundMessage struct {
	MessageID   string    `json:"message_id" validate:"required,max=256"`
	ChannelID   string    `json:"channel_id" validate:"required,max=256"`
	ChannelName string    `json:"channel_name" validate:"max=256"`
	Text        string    `json:"text"`
	ReceivedAt  time.Time `json:"received_at"`
}

type ProcessedMessage struct {
	MessageID   string        `json:"message_id"`
	ChannelID   string        `json:"channel_id"`
	Status      MessageStatus `json:"status"`
	ProcessedAt time.Time     `json:"processed_at"`
}

// BookingEntry is one unit of work for the recorder: the ledger reservation,
// the transaction row and the summary increments all derive from it.
type BookingEntry struct {
	MessageID  string
	ChannelID  string
	Date       string
	Booking    ParsedBooking
	RecordedAt time.Time
}

type Transaction struct {
	ID            string        `json:"id"`
	MessageID     string        `json:"message_id"`
	ChannelID     string        `json:"channel_id"`
	Location      string        `json:"location"`
	Unit          string        `json:"unit"`
	CheckoutTime  string        `json:"checkout_time"`
	Duration      string        `json:"duration"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	TransferTag   string        `json:"transfer_tag,omitempty"`
	OperatorName  string        `json:"operator_name"`
	GrossAmount   int64         `json:"gross_amount"`
	Commission    int64         `json:"commission"`
	NetAmount     int64         `json:"net_amount"`
	SkipFinancial bool          `json:"skip_financial"`
	Date          string        `json:"date"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Booking rebuilds the parsed booking a transaction was recorded from.
func (t Transaction) Booking() ParsedBooking {
	return ParsedBooking{
		Location:      t.Location,
		Unit:          t.Unit,
		CheckoutTime:  t.CheckoutTime,
		Duration:      t.Duration,
		PaymentMethod: t.PaymentMethod,
		TransferTag:   t.TransferTag,
		OperatorName:  t.OperatorName,
		GrossAmount:   t.GrossAmount,
		Commission:    t.Commission,
		SkipFinancial: t.SkipFinancial,
	}
}

type OperatorDailySummary struct {
	Date            string    `json:"date"`
	OperatorName    string    `json:"operator_name"`
	BookingCount    int64     `json:"booking_count"`
	CashTotal       int64     `json:"cash_total"`
	TransferTotal   int64     `json:"transfer_total"`
	CommissionTotal int64     `json:"commission_total"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s *OperatorDailySummary) Apply(d Delta) {
	s.BookingCount += d.Bookings
	s.CashTotal += d.Cash
	s.TransferTotal += d.Transfer
	s.CommissionTotal += d.Commission
}

type DailySummary struct {
	Date            string    `json:"date"`
	BookingCount    int64     `json:"booking_count"`
	CashTotal       int64     `json:"cash_total"`
	TransferTotal   int64     `json:"transfer_total"`
	GrossTotal      int64     `json:"gross_total"`
	CommissionTotal int64     `json:"commission_total"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s *DailySummary) Apply(d Delta) {
	s.BookingCount += d.Bookings
	s.CashTotal += d.Cash
	s.TransferTotal += d.Transfer
	s.GrossTotal += d.Gross()
	s.CommissionTotal += d.Commission
}

type Totals struct {
	BookingCount    int64 `json:"booking_count"`
	CashTotal       int64 `json:"cash_total"`
	TransferTotal   int64 `json:"transfer_total"`
	GrossTotal      int64 `json:"gross_total"`
	CommissionTotal int64 `json:"commission_total"`
	NetTotal        int64 `json:"net_total"`
	ActiveDays      int64 `json:"active_days"`
	OperatorCount   int64 `json:"operator_count"`
}

// RecapRequest is a parsed !rekap command. A nil Date leaves the window to the caller.
type RecapRequest struct {
	Date *time.Time `json:"date,omitempty"`
}

func (r RecapRequest) HasDate() bool {
	return r.Date != nil
}

type LocationTotal struct {
	Location     string `json:"location"`
	BookingCount int64  `json:"booking_count"`
	GrossTotal   int64  `json:"gross_total"`
}

type RecapReport struct {
	Date          string                 `json:"date"`
	DisplayDate   string                 `json:"display_date"`
	Location      string                 `json:"location,omitempty"`
	Summary       DailySummary           `json:"summary"`
	Operators     []OperatorDailySummary `json:"operators"`
	Locations     []LocationTotal        `json:"locations"`
	NetTotal      int64                  `json:"net_total"`
	AverageTicket decimal.Decimal        `json:"average_ticket"`
	GeneratedAt   time.Time              `json:"generated_at"`
}

type IngestOutcome string

const (
	OutcomeRecorded  IngestOutcome = "recorded"
	OutcomeRejected  IngestOutcome = "rejected"
	OutcomeDuplicate IngestOutcome = "duplicate"
	OutcomeIgnored   IngestOutcome = "ignored"
)

type IngestResult struct {
	Outcome       IngestOutcome
	Verdict       Verdict
	TransactionID string
}

type IngestResponse struct {
	Outcome       IngestOutcome `json:"outcome"`
	Verdict       *VerdictView  `json:"verdict,omitempty"`
	TransactionID string        `json:"transaction_id,omitempty"`
}

type CommandRequest struct {
	Text        string `json:"text" validate:"required,max=256"`
	ChannelID   string `json:"channel_id" validate:"max=256"`
	ChannelName string `json:"channel_name" validate:"max=256"`
}

type TokenRequest struct {
	ClientID     string `json:"client_id" validate:"required,max=128"`
	ClientSecret string `json:"client_secret" validate:"required,max=256"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	ClientID string
	Role     string
}
