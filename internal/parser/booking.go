package parser

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"rekapin/backend/internal/domain"
)

// Template labels in the order they appear in a booking message.
const (
	LabelUnit       = "Unit"
	LabelCheckout   = "Cek out"
	LabelDuration   = "Untuk"
	LabelPayment    = "Cash/Tf"
	LabelOperator   = "Cs"
	LabelCommission = "Komisi"
)

// PassThroughOperator marks bookings counted without money, e.g. app orders.
const PassThroughOperator = "apk"

// AmountScale converts the thousands written in the chat into rupiah.
const AmountScale = 1000

const minBookingLines = 2

var checkoutPattern = regexp.MustCompile(`^(\d{1,2})[:.](\d{2})\b`)

var paymentMethods = map[string]domain.PaymentMethod{
	"cash": domain.PaymentCash,
	"tf":   domain.PaymentTransfer,
}

// Shorthands for thousands. The chat already writes amounts in thousands, so
// they only decorate the number.
var thousandSuffixes = []string{"rb", "k"}

var thousandWords = map[string]bool{"ribu": true, "rb": true, "k": true}

type rule struct {
	label   string
	extract func(value string, booking *domain.ParsedBooking) bool
}

var rules = []rule{
	{label: LabelUnit, extract: extractUnit},
	{label: LabelCheckout, extract: extractCheckout},
	{label: LabelDuration, extract: extractDuration},
	{label: LabelPayment, extract: extractPayment},
	{label: LabelOperator, extract: extractOperator},
	{label: LabelCommission, extract: extractCommission},
}

// labelsByLength keeps longer labels ahead of their possible prefixes.
var labelsByLength = []string{LabelCommission, LabelCheckout, LabelPayment, LabelDuration, LabelUnit, LabelOperator}

// ParseBooking classifies text posted in the channel called channelName.
// It never fails: every input maps to exactly one verdict.
func ParseBooking(text, channelName string) (verdict domain.Verdict) {
	defer func() {
		if recovered := recover(); recovered != nil {
			verdict = domain.WrongFormat{}
		}
	}()

	lines := nonBlankLines(text)
	if len(lines) == 0 {
		return domain.WrongFormat{}
	}
	if !headerMatches(lines[0], channelName) {
		return domain.WrongPrefix{}
	}
	if len(lines) < minBookingLines || !strings.HasPrefix(lines[1], LabelUnit) {
		return domain.WrongFormat{}
	}

	fields := tokenize(lines[1:])
	booking := domain.ParsedBooking{Location: normalizeSpaces(channelName)}
	for _, r := range rules {
		value, ok := fields[r.label]
		if !ok || value == "" || !r.extract(value, &booking) {
			return domain.MissingField{Field: r.label}
		}
	}

	if booking.OperatorName == PassThroughOperator {
		booking.SkipFinancial = true
		booking.GrossAmount = 0
		booking.Commission = 0
	}
	return domain.Valid{Booking: booking}
}

// LooksLikeBooking reports whether text is shaped like a booking attempt at all.
// Ordinary chatter fails this check and is ignored rather than rejected.
func LooksLikeBooking(text string) bool {
	lines := nonBlankLines(text)
	if len(lines) < minBookingLines {
		return false
	}
	return strings.Contains(strings.ToLower(lines[1]), "unit")
}

func nonBlankLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// headerMatches requires the display name at the end of the header, preceded
// by at least one marker glyph and nothing else.
func headerMatches(header, channelName string) bool {
	name := strings.ToLower(normalizeSpaces(channelName))
	if name == "" {
		return false
	}
	line := strings.ToLower(normalizeSpaces(header))
	if !strings.HasSuffix(line, name) {
		return false
	}
	marker := strings.TrimSpace(line[:len(line)-len(name)])
	if marker == "" {
		return false
	}
	for _, r := range marker {
		if !isDecoration(r) {
			return false
		}
	}
	return true
}

func isDecoration(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func normalizeSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

// tokenize maps each known label to its value. The first occurrence wins.
func tokenize(lines []string) map[string]string {
	fields := make(map[string]string, len(rules))
	for _, line := range lines {
		label, value, ok := splitLabel(line)
		if !ok {
			continue
		}
		if _, seen := fields[label]; seen {
			continue
		}
		fields[label] = value
	}
	return fields
}

func splitLabel(line string) (string, string, bool) {
	for _, label := range labelsByLength {
		if !strings.HasPrefix(line, label) {
			continue
		}
		rest := strings.TrimLeft(line[len(label):], " \t")
		if !strings.HasPrefix(rest, ":") {
			continue
		}
		return label, strings.TrimSpace(rest[1:]), true
	}
	return "", "", false
}

func extractUnit(value string, booking *domain.ParsedBooking) bool {
	booking.Unit = value
	return true
}

func extractCheckout(value string, booking *domain.ParsedBooking) bool {
	match := checkoutPattern.FindStringSubmatch(value)
	if match == nil {
		return false
	}
	hour, _ := strconv.Atoi(match[1])
	minute, _ := strconv.Atoi(match[2])
	if hour > 23 || minute > 59 {
		return false
	}
	booking.CheckoutTime = fmt.Sprintf("%02d:%02d", hour, minute)
	return true
}

func extractDuration(value string, booking *domain.ParsedBooking) bool {
	booking.Duration = value
	return true
}

// extractPayment reads `cash <n>` or `tf <subtag>? <n>?`. Only the segment up
// to the next method token belongs to the chosen method. A token carrying
// digits that is not a clean amount rejects the field.
func extractPayment(value string, booking *domain.ParsedBooking) bool {
	tokens := strings.Fields(strings.ToLower(value))
	if len(tokens) == 0 {
		return false
	}
	method, ok := paymentMethods[tokens[0]]
	if !ok {
		return false
	}
	booking.PaymentMethod = method

	segment := tokens[1:]
	for i, token := range segment {
		if _, other := paymentMethods[token]; other {
			segment = segment[:i]
			break
		}
	}

	var tag []string
	var amountToken string
	for _, token := range segment {
		switch {
		case strings.ContainsAny(token, "0123456789"):
			if amountToken != "" {
				return false
			}
			amountToken = token
		case thousandWords[token]:
		default:
			tag = append(tag, token)
		}
	}

	if amountToken != "" {
		amount, ok := parseAmount(amountToken)
		if !ok {
			return false
		}
		booking.GrossAmount = amount
	}
	if method == domain.PaymentTransfer {
		booking.TransferTag = strings.Join(tag, " ")
	}
	return true
}

// parseAmount accepts bare digits with an optional thousands shorthand, e.g. 250 or 250rb.
func parseAmount(token string) (int64, bool) {
	digits := token
	for _, suffix := range thousandSuffixes {
		if trimmed, ok := strings.CutSuffix(token, suffix); ok {
			digits = trimmed
			break
		}
	}
	if !isDigits(digits) {
		return 0, false
	}
	return scaleAmount(digits)
}

func extractOperator(value string, booking *domain.ParsedBooking) bool {
	booking.OperatorName = strings.ToLower(normalizeSpaces(value))
	return booking.OperatorName != ""
}

func extractCommission(value string, booking *domain.ParsedBooking) bool {
	amount, ok := parseAmount(value)
	if !ok {
		return false
	}
	booking.Commission = amount
	return true
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func scaleAmount(digits string) (int64, bool) {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n > math.MaxInt64/AmountScale {
		return 0, false
	}
	return n * AmountScale, true
}
