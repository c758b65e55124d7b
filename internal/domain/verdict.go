package domain

type VerdictKind string

const (
	VerdictValid        VerdictKind = "VALID"
	VerdictWrongFormat  VerdictKind = "WRONG_FORMAT"
	VerdictWrongPrefix  VerdictKind = "WRONG_PREFIX"
	VerdictMissingField VerdictKind = "MISSING_FIELD"
)

// Verdict is the outcome of parsing one message. The set of variants is closed;
// callers dispatch with a type switch.
type Verdict interface {
	Kind() VerdictKind
	verdict()
}

type Valid struct {
	Booking ParsedBooking
}

// WrongFormat means the text is not a booking message at all.
type WrongFormat struct{}

// WrongPrefix means the header line does not carry this channel's display name.
type WrongPrefix struct{}

// MissingField names the first required field, in template order, that was
// absent or unparseable.
type MissingField struct {
	Field string
}

func (Valid) Kind() VerdictKind        { return VerdictValid }
func (WrongFormat) Kind() VerdictKind  { return VerdictWrongFormat }
func (WrongPrefix) Kind() VerdictKind  { return VerdictWrongPrefix }
func (MissingField) Kind() VerdictKind { return VerdictMissingField }

func (Valid) verdict()        {}
func (WrongFormat) verdict()  {}
func (WrongPrefix) verdict()  {}
func (MissingField) verdict() {}

type VerdictView struct {
	Kind         VerdictKind    `json:"kind"`
	Booking      *ParsedBooking `json:"booking,omitempty"`
	MissingField string         `json:"missing_field,omitempty"`
}

// ViewOf flattens a verdict for JSON responses and logs. A nil verdict yields nil.
func ViewOf(v Verdict) *VerdictView {
	switch typed := v.(type) {
	case Valid:
		booking := typed.Booking
		return &VerdictView{Kind: typed.Kind(), Booking: &booking}
	case MissingField:
		return &VerdictView{Kind: typed.Kind(), MissingField: typed.Field}
	case WrongFormat, WrongPrefix:
		return &VerdictView{Kind: typed.Kind()}
	default:
		return nil
	}
}
