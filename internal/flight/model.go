package flight

// StopSetting limits the number of connections per direction.
type StopSetting int

const (
	Nonstop StopSetting = 0
	OneStop StopSetting = 1
)

// StopSequence is the order in which stop settings are tried for a route.
var StopSequence = []StopSetting{Nonstop, OneStop}

// providerValue is the provider's "stops" encoding: 1 nonstop, 2 at most one stop.
func (s StopSetting) providerValue() int { return int(s) + 1 }

// Query is one provider search.
type Query struct {
	Origin       string
	Destination  string
	OutboundDate string
	ReturnDate   string // empty for one-way
	Stops        StopSetting
	Adults       int
}

func (q Query) RoundTrip() bool { return q.ReturnDate != "" }

// ScrapedFlight is a provider offer normalised into one shape.
// Return fields are empty when the offer carries no return leg.
type ScrapedFlight struct {
	ID                    string         `json:"id"`
	Airline               string         `json:"airline"`
	Price                 float64        `json:"price"`
	Currency              string         `json:"currency"`
	OutboundDepartureTime string         `json:"outbound_departure_time"`
	OutboundArrivalTime   string         `json:"outbound_arrival_time"`
	ReturnDepartureTime   string         `json:"return_departure_time,omitempty"`
	ReturnArrivalTime     string         `json:"return_arrival_time,omitempty"`
	TotalDuration         string         `json:"total_duration"`
	OutboundStops         int            `json:"outbound_stops"`
	ReturnStops           int            `json:"return_stops"`
	DepartureAirport      string         `json:"departure_airport"`
	ArrivalAirport        string         `json:"arrival_airport"`
	OutboundRoute         []string       `json:"outbound_route"`
	ReturnRoute           []string       `json:"return_route"`
	BookingURL            string         `json:"booking_url"`
	Raw                   map[string]any `json:"-"`
}

// Key identifies an offer across searches: two flights with equal keys are the same offer.
type Key struct {
	DepartureAirport  string
	ArrivalAirport    string
	OutboundDeparture string
	ReturnDeparture   string
	Airline           string
	Price             float64
}

func (f ScrapedFlight) DedupKey() Key {
	return Key{
		DepartureAirport:  f.DepartureAirport,
		ArrivalAirport:    f.ArrivalAirport,
		OutboundDeparture: f.OutboundDepartureTime,
		ReturnDeparture:   f.ReturnDepartureTime,
		Airline:           f.Airline,
		Price:             f.Price,
	}
}
