package finder

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ValidationError is a rejected request. Its text is safe to show to callers.
type ValidationError string

func (e ValidationError) Error() string {
	return string(e)
}

const (
	ErrMissingCities        ValidationError = "Both fromCity and toCity are required"
	ErrSameCities           ValidationError = "Origin and destination cities must differ"
	ErrTravellersNotInt     ValidationError = "travellers must be a positive integer"
	ErrTravellersTooFew     ValidationError = "travellers must be at least 1"
	ErrBudgetNotNumber      ValidationError = "budgetForFlightFinder must be a positive number"
	ErrBudgetNotPositive    ValidationError = "budgetForFlightFinder must be greater than zero"
	ErrReturnBeforeOutbound ValidationError = "returnDate cannot be earlier than outboundDate"
	ErrOutboundInPast       ValidationError = "outboundDate cannot be in the past"
	ErrReturnInPast         ValidationError = "returnDate cannot be in the past"
)

func errDateRequired(label string) ValidationError {
	return ValidationError(label + " is required")
}

func errDateFormat(label string) ValidationError {
	return ValidationError(label + " must be in YYYY-MM-DD format")
}

// Request is a validated flight search. Dates are YYYY-MM-DD; ReturnDate is
// empty for a one-way search.
type Request struct {
	FromCity     string  `json:"fromCity"`
	ToCity       string  `json:"toCity"`
	Travellers   int     `json:"travellers"`
	Budget       float64 `json:"budgetForFlightFinder"`
	OutboundDate string  `json:"outboundDate"`
	ReturnDate   string  `json:"returnDate,omitempty"`
}

func (r Request) RoundTrip() bool { return r.ReturnDate != "" }

// ParseRequest validates a decoded JSON body. today is the caller's current
// date; only its calendar day is used.
func ParseRequest(raw map[string]any, today time.Time) (Request, error) {
	from := normaliseCity(pick(raw, "fromCity", "from_city"))
	to := normaliseCity(pick(raw, "toCity", "to_city"))
	if from == "" || to == "" {
		return Request{}, ErrMissingCities
	}
	if strings.EqualFold(from, to) {
		return Request{}, ErrSameCities
	}

	travellers, ok := asInt(pick(raw, "travellers", "travelers"))
	if !ok {
		return Request{}, ErrTravellersNotInt
	}
	if travellers <= 0 {
		return Request{}, ErrTravellersTooFew
	}

	budget, ok := asFloat(pick(raw, "budgetForFlightFinder", "budget_for_flight_finder", "budget"))
	if !ok {
		return Request{}, ErrBudgetNotNumber
	}
	if budget <= 0 {
		return Request{}, ErrBudgetNotPositive
	}

	outbound, err := parseDate(pick(raw, "outboundDate", "outbound_date"), "outboundDate")
	if err != nil {
		return Request{}, err
	}
	var inbound time.Time
	if v := pick(raw, "returnDate", "return_date"); present(v) {
		if inbound, err = parseDate(v, "returnDate"); err != nil {
			return Request{}, err
		}
		if inbound.Before(outbound) {
			return Request{}, ErrReturnBeforeOutbound
		}
	}

	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if outbound.Before(day) {
		return Request{}, ErrOutboundInPast
	}
	if !inbound.IsZero() && inbound.Before(day) {
		return Request{}, ErrReturnInPast
	}

	req := Request{
		FromCity:     from,
		ToCity:       to,
		Travellers:   travellers,
		Budget:       budget,
		OutboundDate: outbound.Format(dateLayout),
	}
	if !inbound.IsZero() {
		req.ReturnDate = inbound.Format(dateLayout)
	}
	return req, nil
}

// pick returns the value of the first alias present in raw.
func pick(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			return v
		}
	}
	return nil
}

func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	}
	return true
}

func normaliseCity(v any) string {
	if v == nil {
		return ""
	}
	return strings.Join(strings.Fields(fmt.Sprint(v)), " ")
}

// asInt accepts whole numbers and numeric strings; fractional numbers truncate.
func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case json.Number:
		n, err := strconv.Atoi(t.String())
		return n, err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseDate(v any, label string) (time.Time, error) {
	if !present(v) {
		return time.Time{}, errDateRequired(label)
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, errDateFormat(label)
	}
	d, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errDateFormat(label)
	}
	return d, nil
}
