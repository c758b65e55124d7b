package parser

import (
	"strings"
	"testing"

	"rekapin/backend/internal/domain"
)

const skyHouse = "SKY HOUSE"

func bookingText(lines ...string) string {
	return strings.Join(append([]string{"🟢SKY HOUSE"}, lines...), "\n")
}

func fullBooking() []string {
	return []string{
		"Unit :L3/30N",
		"Cek out: 05:00",
		"Untuk : 6 jam",
		"Cash/Tf: cash 250",
		"Cs : dreamy",
		"Komisi: 50",
	}
}

func without(lines []string, label string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.HasPrefix(line, label) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func mustValid(t *testing.T, verdict domain.Verdict) domain.ParsedBooking {
	t.Helper()
	valid, ok := verdict.(domain.Valid)
	if !ok {
		t.Fatalf("expected valid verdict, got %#v", verdict)
	}
	return valid.Booking
}

func TestParseBookingEndToEnd(t *testing.T) {
	text := "🟢SKY HOUSE\nUnit :L3/30N\nCek out: 05:00\nUntuk : 6 jam\nCash/Tf: cash 250\nCs : dreamy\nKomisi: 50"

	booking := mustValid(t, ParseBooking(text, skyHouse))

	want := domain.ParsedBooking{
		Location:      skyHouse,
		Unit:          "L3/30N",
		CheckoutTime:  "05:00",
		Duration:      "6 jam",
		PaymentMethod: domain.PaymentCash,
		OperatorName:  "dreamy",
		GrossAmount:   250000,
		Commission:    50000,
	}
	if booking != want {
		t.Fatalf("unexpected booking\n got: %#v\nwant: %#v", booking, want)
	}
	if booking.NetAmount() != 200000 {
		t.Fatalf("expected net 200000, got %d", booking.NetAmount())
	}
}

func TestParseBookingTransferVariants(t *testing.T) {
	cases := []struct {
		name    string
		payment string
		tag     string
		amount  int64
	}{
		{name: "subtag and amount", payment: "Cash/Tf: tf kr 300", tag: "kr", amount: 300000},
		{name: "subtag only", payment: "Cash/Tf: tf amel", tag: "amel", amount: 0},
		{name: "amount only", payment: "Cash/Tf: TF 175", tag: "", amount: 175000},
		{name: "bare", payment: "Cash/Tf: tf", tag: "", amount: 0},
		{name: "thousands word", payment: "Cash/Tf: tf kr 250 ribu", tag: "kr", amount: 250000},
		{name: "thousands suffix", payment: "Cash/Tf: tf amel 120rb", tag: "amel", amount: 120000},
		{name: "cash segment ignored", payment: "Cash/Tf: tf kr 300 cash 250", tag: "kr", amount: 300000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lines := without(fullBooking(), LabelPayment)
			lines = append(lines, tc.payment)

			booking := mustValid(t, ParseBooking(bookingText(lines...), skyHouse))
			if booking.PaymentMethod != domain.PaymentTransfer {
				t.Fatalf("expected transfer, got %s", booking.PaymentMethod)
			}
			if booking.TransferTag != tc.tag {
				t.Fatalf("expected tag %q, got %q", tc.tag, booking.TransferTag)
			}
			if booking.GrossAmount != tc.amount {
				t.Fatalf("expected amount %d, got %d", tc.amount, booking.GrossAmount)
			}
		})
	}
}

func TestParseBookingCashAmounts(t *testing.T) {
	cases := []struct {
		name    string
		payment string
		amount  int64
	}{
		{name: "bare digits", payment: "Cash/Tf: cash 250", amount: 250000},
		{name: "k suffix", payment: "Cash/Tf: cash 250k", amount: 250000},
		{name: "rb suffix", payment: "Cash/Tf: Cash 250rb", amount: 250000},
		{name: "transfer amount belongs to transfer", payment: "Cash/Tf: cash 250 tf kr 300", amount: 250000},
		{name: "no amount", payment: "Cash/Tf: cash", amount: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lines := without(fullBooking(), LabelPayment)
			lines = append(lines, tc.payment)

			booking := mustValid(t, ParseBooking(bookingText(lines...), skyHouse))
			if booking.PaymentMethod != domain.PaymentCash {
				t.Fatalf("expected cash, got %s", booking.PaymentMethod)
			}
			if booking.GrossAmount != tc.amount {
				t.Fatalf("expected amount %d, got %d", tc.amount, booking.GrossAmount)
			}
			if booking.TransferTag != "" {
				t.Fatalf("expected no transfer tag on cash, got %q", booking.TransferTag)
			}
		})
	}
}

func TestParseBookingFieldsInAnyOrder(t *testing.T) {
	text := bookingText(
		"Unit: A12",
		"Komisi : 20rb",
		"Cs: Rina",
		"Untuk: 3 jam",
		"Cash/Tf : cash 150",
		"Cek out : 9.30",
	)

	booking := mustValid(t, ParseBooking(text, skyHouse))
	if booking.CheckoutTime != "09:30" {
		t.Fatalf("expected normalised checkout 09:30, got %s", booking.CheckoutTime)
	}
	if booking.OperatorName != "rina" {
		t.Fatalf("expected lowercased operator, got %s", booking.OperatorName)
	}
	if booking.GrossAmount != 150000 || booking.Commission != 20000 {
		t.Fatalf("unexpected amounts: gross=%d commission=%d", booking.GrossAmount, booking.Commission)
	}
}

func TestParseBookingFirstLabelOccurrenceWins(t *testing.T) {
	lines := append(fullBooking(), "Cs : other")

	booking := mustValid(t, ParseBooking(bookingText(lines...), skyHouse))
	if booking.OperatorName != "dreamy" {
		t.Fatalf("expected first operator to win, got %s", booking.OperatorName)
	}
}

func TestParseBookingPassThroughOperatorSkipsFinancial(t *testing.T) {
	lines := without(fullBooking(), LabelOperator)
	lines = append(lines, "Cs : APK")

	booking := mustValid(t, ParseBooking(bookingText(lines...), skyHouse))
	if !booking.SkipFinancial {
		t.Fatalf("expected skip financial for pass-through operator")
	}
	if booking.GrossAmount != 0 || booking.Commission != 0 {
		t.Fatalf("expected zero amounts, got gross=%d commission=%d", booking.GrossAmount, booking.Commission)
	}
	if booking.OperatorName != PassThroughOperator {
		t.Fatalf("expected operator %s, got %s", PassThroughOperator, booking.OperatorName)
	}
}

func TestParseBookingMissingSingleField(t *testing.T) {
	for _, label := range []string{LabelCheckout, LabelDuration, LabelPayment, LabelOperator, LabelCommission} {
		t.Run(label, func(t *testing.T) {
			verdict := ParseBooking(bookingText(without(fullBooking(), label)...), skyHouse)
			missing, ok := verdict.(domain.MissingField)
			if !ok {
				t.Fatalf("expected missing field verdict, got %#v", verdict)
			}
			if missing.Field != label {
				t.Fatalf("expected missing %q, got %q", label, missing.Field)
			}
		})
	}
}

func TestParseBookingReportsFirstMissingInTemplateOrder(t *testing.T) {
	lines := without(without(fullBooking(), LabelCommission), LabelDuration)

	verdict := ParseBooking(bookingText(lines...), skyHouse)
	if verdict != (domain.MissingField{Field: LabelDuration}) {
		t.Fatalf("expected missing %s, got %#v", LabelDuration, verdict)
	}

	verdict = ParseBooking(bookingText("Unit : B2"), skyHouse)
	if verdict != (domain.MissingField{Field: LabelCheckout}) {
		t.Fatalf("expected missing %s, got %#v", LabelCheckout, verdict)
	}
}

func TestParseBookingUnparseableValues(t *testing.T) {
	cases := []struct {
		name    string
		replace string
		line    string
	}{
		{name: "empty unit", replace: LabelUnit, line: "Unit :"},
		{name: "checkout without time", replace: LabelCheckout, line: "Cek out: pagi"},
		{name: "checkout out of range", replace: LabelCheckout, line: "Cek out: 25:00"},
		{name: "unknown payment method", replace: LabelPayment, line: "Cash/Tf: qris 100"},
		{name: "amount with separator", replace: LabelPayment, line: "Cash/Tf: Cash 1.500"},
		{name: "amount with unknown suffix", replace: LabelPayment, line: "Cash/Tf: cash 250x"},
		{name: "two amounts for one method", replace: LabelPayment, line: "Cash/Tf: tf 100 kr 300"},
		{name: "checkout with extra digits", replace: LabelCheckout, line: "Cek out: 123:456"},
		{name: "checkout time not leading", replace: LabelCheckout, line: "Cek out: jam 05:00"},
		{name: "commission with separator", replace: LabelCommission, line: "Komisi: 5.0"},
		{name: "commission as words", replace: LabelCommission, line: "Komisi: 50 ribu"},
		{name: "commission overflow", replace: LabelCommission, line: "Komisi: 99999999999999999999"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lines := fullBooking()
			for i, line := range lines {
				if strings.HasPrefix(line, tc.replace) {
					lines[i] = tc.line
				}
			}
			verdict := ParseBooking(bookingText(lines...), skyHouse)
			if verdict != (domain.MissingField{Field: tc.replace}) {
				t.Fatalf("expected missing %s, got %#v", tc.replace, verdict)
			}
		})
	}
}

func TestParseBookingWrongPrefix(t *testing.T) {
	body := strings.Join(fullBooking(), "\n")
	cases := map[string]string{
		"other channel":  "🟢OCEAN VIEW\n" + body,
		"missing marker": "SKY HOUSE\n" + body,
		"ordinary chat":  "halo kak",
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			if verdict := ParseBooking(text, skyHouse); verdict != (domain.WrongPrefix{}) {
				t.Fatalf("expected wrong prefix, got %#v", verdict)
			}
		})
	}
}

func TestParseBookingHeaderIsCaseAndSpaceInsensitive(t *testing.T) {
	text := "🟢 sky   house\n" + strings.Join(fullBooking(), "\n")
	mustValid(t, ParseBooking(text, skyHouse))
}

func TestParseBookingChannelNameWithLeadingSymbols(t *testing.T) {
	body := strings.Join(fullBooking(), "\n")
	cases := []struct {
		header  string
		channel string
	}{
		{header: "🟢#1 HOUSE", channel: "#1 HOUSE"},
		{header: "🟢 [VIP] SKY", channel: "[VIP] SKY"},
		{header: "🟢123 Residence", channel: "123 residence"},
	}

	for _, tc := range cases {
		t.Run(tc.channel, func(t *testing.T) {
			booking := mustValid(t, ParseBooking(tc.header+"\n"+body, tc.channel))
			if booking.Location != normalizeSpaces(tc.channel) {
				t.Fatalf("expected location %q, got %q", tc.channel, booking.Location)
			}
		})
	}

	if verdict := ParseBooking("#1 HOUSE\n"+body, "#1 HOUSE"); verdict != (domain.WrongPrefix{}) {
		t.Fatalf("expected wrong prefix without a marker, got %#v", verdict)
	}
	if verdict := ParseBooking("🟢NEW SKY HOUSE\n"+body, skyHouse); verdict != (domain.WrongPrefix{}) {
		t.Fatalf("expected wrong prefix for a longer channel name, got %#v", verdict)
	}
}

func TestParseBookingWrongFormat(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"blank lines":    "\n  \n\t\n",
		"header only":    "🟢SKY HOUSE",
		"missing anchor": bookingText(without(fullBooking(), LabelUnit)...),
		"lowercase unit": bookingText("unit : A1", "Cek out: 05:00"),
	}

	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			if verdict := ParseBooking(text, skyHouse); verdict != (domain.WrongFormat{}) {
				t.Fatalf("expected wrong format, got %#v", verdict)
			}
		})
	}
}

func TestParseBookingIgnoresBlankLinesAndCRLF(t *testing.T) {
	text := "🟢SKY HOUSE\r\n\r\nUnit :L3/30N\r\n\r\nCek out: 05:00\r\nUntuk : 6 jam\r\nCash/Tf: cash 250\r\nCs : dreamy\r\nKomisi: 50\r\n"
	booking := mustValid(t, ParseBooking(text, skyHouse))
	if booking.Unit != "L3/30N" {
		t.Fatalf("unexpected unit %q", booking.Unit)
	}
}

func TestParseBookingIsDeterministic(t *testing.T) {
	text := bookingText(fullBooking()...)
	first := ParseBooking(text, skyHouse)
	for i := 0; i < 10; i++ {
		if ParseBooking(text, skyHouse) != first {
			t.Fatalf("verdict changed between calls")
		}
	}
}

func TestLooksLikeBooking(t *testing.T) {
	if !LooksLikeBooking(bookingText(fullBooking()...)) {
		t.Fatalf("expected booking shape to be recognised")
	}
	if !LooksLikeBooking("🟢OTHER\nunit: a1") {
		t.Fatalf("expected lowercase unit line to look like a booking attempt")
	}
	if LooksLikeBooking("halo kak\nmau tanya harga") {
		t.Fatalf("expected chatter to be ignored")
	}
	if LooksLikeBooking("single line") {
		t.Fatalf("expected single line to be ignored")
	}
}
