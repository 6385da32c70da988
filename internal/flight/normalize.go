package flight

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	currencyUSD    = "USD"
	unknownValue   = "Unknown"
	bookingBaseURL = "https://www.google.com/travel/flights/booking?token="
	searchBaseURL  = "https://www.google.com/travel/flights?q="
)

type segment = map[string]any

var (
	outboundSegmentKeys = []string{"departure_flights", "outbound_flights", "outbound_flight"}
	returnSegmentKeys   = []string{"return_flights", "inbound_flights", "return_flight"}

	airportSubKeys = []string{"id", "code", "iata", "iata_code"}
	timeSubKeys    = []string{"time", "time_text", "local_time", "formatted", "value"}
)

// chain is an ordered list of field-name variants for one logical field.
// Object values are searched by subKeys; plain values are accepted when plain is set.
type chain struct {
	keys    []string
	subKeys []string
	plain   bool
}

func (c chain) find(m map[string]any) (string, bool) {
	for _, k := range c.keys {
		switch v := m[k].(type) {
		case map[string]any:
			for _, sk := range c.subKeys {
				if s, ok := scalarString(v[sk]); ok {
					return s, true
				}
			}
		default:
			if !c.plain {
				continue
			}
			if s, ok := scalarString(v); ok {
				return s, true
			}
		}
	}
	return "", false
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}

func airportChain(role string) chain {
	return chain{
		keys:    []string{role + "_airport", role + "_airport_code", role + "_code", role + "Airport", role + "Code"},
		subKeys: airportSubKeys,
		plain:   true,
	}
}

// Provider segments nest the time inside the airport object; a plain string
// under the airport key is a code, not a time.
func timeChains(role string) []chain {
	return []chain{
		{keys: []string{role + "_airport"}, subKeys: timeSubKeys},
		{
			keys: []string{
				role + "_time", role + "_time_utc", role + "_time_local",
				role + "_datetime", role + "_date_time", role + "Time", role + "TimeUtc",
			},
			subKeys: timeSubKeys,
			plain:   true,
		},
	}
}

func airportCode(seg segment, role, fallback string) string {
	if code, ok := airportChain(role).find(seg); ok {
		return code
	}
	return fallback
}

func segmentTime(seg segment, role string) string {
	for _, c := range timeChains(role) {
		if t, ok := c.find(seg); ok {
			return t
		}
	}

	// Last resort: any string field whose name mentions both the role and "time".
	keys := make([]string, 0, len(seg))
	for k := range seg {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lk := strings.ToLower(k)
		if !strings.Contains(lk, role) || !strings.Contains(lk, "time") {
			continue
		}
		if s, ok := seg[k].(string); ok && s != "" {
			return s
		}
	}
	return unknownValue
}

// asSegments accepts a list of objects or a single object.
func asSegments(v any) []segment {
	switch t := v.(type) {
	case []any:
		out := make([]segment, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		return []segment{t}
	}
	return nil
}

func firstSegments(item map[string]any, keys []string) []segment {
	for _, k := range keys {
		if segs := asSegments(item[k]); len(segs) > 0 {
			return segs
		}
	}
	return nil
}

func hasReturnSegments(item map[string]any) bool {
	return len(firstSegments(item, returnSegmentKeys)) > 0
}

// partitionSegments splits an undifferentiated segment list by each segment's
// declared type; untyped lists of more than two segments are halved for round trips.
func partitionSegments(segs []segment, roundTrip bool) (outbound, inbound []segment) {
	if len(segs) == 0 {
		return nil, nil
	}
	for _, s := range segs {
		kind, _ := scalarString(s["type"])
		if kind == "" {
			kind, _ = scalarString(s["segment_type"])
		}
		if strings.Contains(strings.ToLower(kind), "return") {
			inbound = append(inbound, s)
		} else {
			outbound = append(outbound, s)
		}
	}
	if len(inbound) > 0 {
		if len(outbound) == 0 {
			outbound = segs
		}
		return outbound, inbound
	}
	if roundTrip && len(segs) > 2 {
		half := len(segs) / 2
		return segs[:half], segs[half:]
	}
	return segs, nil
}

type bounds struct {
	departureTime    string
	arrivalTime      string
	departureAirport string
	arrivalAirport   string
}

func segmentBounds(segs []segment, origin, dest string) bounds {
	if len(segs) == 0 {
		return bounds{departureTime: unknownValue, arrivalTime: unknownValue, departureAirport: origin, arrivalAirport: dest}
	}
	first, last := segs[0], segs[len(segs)-1]
	return bounds{
		departureTime:    segmentTime(first, "departure"),
		arrivalTime:      segmentTime(last, "arrival"),
		departureAirport: airportCode(first, "departure", origin),
		arrivalAirport:   airportCode(last, "arrival", dest),
	}
}

// segmentRoute walks the segments in order, collapsing a connection airport
// that appears as both arrival and next departure.
func segmentRoute(segs []segment, origin, dest string) []string {
	if len(segs) == 0 {
		return []string{origin, dest}
	}
	var path []string
	current := origin
	for i, s := range segs {
		dep := airportCode(s, "departure", current)
		arrFallback := current
		if i == len(segs)-1 {
			arrFallback = dest
		}
		arr := airportCode(s, "arrival", arrFallback)

		if len(path) == 0 || path[len(path)-1] != dep {
			path = append(path, dep)
		}
		path = append(path, arr)
		current = arr
	}
	return path
}

func stopCount(segs []segment) int {
	if len(segs) <= 1 {
		return 0
	}
	return len(segs) - 1
}

func airlineLabel(segs []segment, fallback any) string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range segs {
		name, ok := s["airline"].(string)
		if !ok || name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) > 0 {
		sort.Strings(names)
		return strings.Join(names, ", ")
	}
	if s, ok := fallback.(string); ok && s != "" {
		return s
	}
	return unknownValue
}

// humanizeMinutes renders a raw minute count as "Xh Ym".
func humanizeMinutes(v any) string {
	minutes, ok := v.(float64)
	if !ok {
		return unknownValue
	}
	total := int(minutes)
	h, m := total/60, total%60
	var parts []string
	if h != 0 {
		parts = append(parts, fmt.Sprintf("%dh", h))
	}
	if m != 0 {
		parts = append(parts, fmt.Sprintf("%dm", m))
	}
	if len(parts) == 0 {
		return "0m"
	}
	return strings.Join(parts, " ")
}

// parsePrice accepts a JSON number or a display string such as "$1,234".
func parsePrice(v any) (float64, bool) {
	var p float64
	switch t := v.(type) {
	case float64:
		p = t
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' {
				return r
			}
			return -1
		}, t)
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		p = f
	default:
		return 0, false
	}
	if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, false
	}
	return p, true
}

func bookingURL(token, origin, dest string) string {
	if token != "" {
		return bookingBaseURL + token
	}
	return searchBaseURL + "Flights%20from%20" + origin + "%20to%20" + dest
}

func compositeID(origin, dest, outDep, retDep, airline string, price float64) string {
	return strings.Join([]string{origin, dest, outDep, retDep, airline, strconv.FormatFloat(price, 'f', 2, 64)}, "|")
}

// normalizeOffer converts one provider offer. ok is false when the offer has no usable price.
func normalizeOffer(item map[string]any, q Query) (ScrapedFlight, bool) {
	price, ok := parsePrice(item["price"])
	if !ok {
		return ScrapedFlight{}, false
	}

	roundTrip := q.RoundTrip()
	all := asSegments(item["flights"])
	outbound := firstSegments(item, outboundSegmentKeys)
	inbound := firstSegments(item, returnSegmentKeys)
	switch {
	case len(outbound) == 0 && len(inbound) == 0:
		outbound, inbound = partitionSegments(all, roundTrip)
	case len(outbound) == 0:
		outbound, _ = partitionSegments(all, roundTrip)
	case len(inbound) == 0:
		_, inbound = partitionSegments(all, roundTrip)
	}

	out := segmentBounds(outbound, q.Origin, q.Destination)

	f := ScrapedFlight{
		Price:                 price,
		Currency:              currencyUSD,
		OutboundDepartureTime: out.departureTime,
		OutboundArrivalTime:   out.arrivalTime,
		TotalDuration:         humanizeMinutes(item["total_duration"]),
		OutboundStops:         stopCount(outbound),
		DepartureAirport:      out.departureAirport,
		ArrivalAirport:        out.arrivalAirport,
		OutboundRoute:         segmentRoute(outbound, q.Origin, q.Destination),
		ReturnRoute:           []string{},
		Raw:                   item,
	}
	if len(inbound) > 0 {
		ret := segmentBounds(inbound, q.Destination, q.Origin)
		f.ReturnDepartureTime = ret.departureTime
		f.ReturnArrivalTime = ret.arrivalTime
		f.ReturnStops = stopCount(inbound)
		f.ReturnRoute = segmentRoute(inbound, q.Destination, q.Origin)
	}

	f.Airline = airlineLabel(append(append([]segment{}, outbound...), inbound...), item["airline"])

	token, _ := item["booking_token"].(string)
	f.BookingURL = bookingURL(token, q.Origin, q.Destination)
	f.ID = token
	if f.ID == "" {
		f.ID = compositeID(f.DepartureAirport, f.ArrivalAirport, f.OutboundDepartureTime, f.ReturnDepartureTime, f.Airline, price)
	}
	return f, true
}
