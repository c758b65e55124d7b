package parser

import (
	"strings"
	"time"

	"rekapin/backend/internal/domain"
)

const (
	CommandPrefix = "!"
	RecapCommand  = "!rekap"
)

// IsCommand reports whether text is addressed to the bot rather than being a booking.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), CommandPrefix)
}

// ParseRecapCommand accepts "!rekap" and "!rekap DDMMYYYY". Anything else is rejected.
func ParseRecapCommand(text string) (*domain.RecapRequest, bool) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 || tokens[0] != RecapCommand {
		return nil, false
	}
	switch len(tokens) {
	case 1:
		return &domain.RecapRequest{}, true
	case 2:
		date, ok := ParseRecapDate(tokens[1])
		if !ok {
			return nil, false
		}
		return &domain.RecapRequest{Date: &date}, true
	default:
		return nil, false
	}
}

// ParseRecapDate parses an 8-digit DDMMYYYY token into a UTC calendar date.
// Dates that do not exist, such as 31022025, are rejected.
func ParseRecapDate(token string) (time.Time, bool) {
	if len(token) != 8 || !isDigits(token) {
		return time.Time{}, false
	}
	day := atoi2(token[0:2])
	month := atoi2(token[2:4])
	year := atoi2(token[4:6])*100 + atoi2(token[6:8])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day || int(date.Month()) != month {
		return time.Time{}, false
	}
	return date, true
}

func atoi2(pair string) int {
	return int(pair[0]-'0')*10 + int(pair[1]-'0')
}
