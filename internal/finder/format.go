package finder

import (
	"fmt"
	"strings"

	"github.com/neexbeast/flightfinder/internal/flight"
	"github.com/neexbeast/flightfinder/pkg/currency"
)

// Leg is one direction of a flight as shown to callers.
type Leg struct {
	DepartureAirport string   `json:"departureAirport"`
	ArrivalAirport   string   `json:"arrivalAirport"`
	DepartureTime    string   `json:"departureTime"`
	ArrivalTime      string   `json:"arrivalTime"`
	Stops            int      `json:"stops"`
	StopsLabel       string   `json:"stopsLabel"`
	Route            []string `json:"route"`
	RouteDisplay     string   `json:"routeDisplay"`
}

// FlightView is a flight formatted for the response lists.
type FlightView struct {
	ID            string  `json:"id"`
	Airline       string  `json:"airline"`
	Price         float64 `json:"price"`
	PriceDisplay  string  `json:"priceDisplay"`
	OverBudget    bool    `json:"overBudget"`
	Currency      string  `json:"currency"`
	TotalDuration string  `json:"totalDuration"`
	Outbound      Leg     `json:"outbound"`
	Return        *Leg    `json:"return"`
	BookingURL    string  `json:"bookingUrl"`
}

func formatFlight(f flight.ScrapedFlight, budget float64) FlightView {
	v := FlightView{
		ID:            f.ID,
		Airline:       f.Airline,
		Price:         f.Price,
		PriceDisplay:  currency.FormatUSD(f.Price),
		OverBudget:    f.Price > budget,
		Currency:      f.Currency,
		TotalDuration: f.TotalDuration,
		Outbound: Leg{
			DepartureAirport: f.DepartureAirport,
			ArrivalAirport:   f.ArrivalAirport,
			DepartureTime:    f.OutboundDepartureTime,
			ArrivalTime:      f.OutboundArrivalTime,
			Stops:            f.OutboundStops,
			StopsLabel:       stopsLabel(f.OutboundStops),
			Route:            nonNil(f.OutboundRoute),
			RouteDisplay:     routeDisplay(f.OutboundRoute),
		},
		BookingURL: f.BookingURL,
	}
	if len(f.ReturnRoute) > 0 {
		v.Return = &Leg{
			DepartureAirport: f.ReturnRoute[0],
			ArrivalAirport:   f.ReturnRoute[len(f.ReturnRoute)-1],
			DepartureTime:    f.ReturnDepartureTime,
			ArrivalTime:      f.ReturnArrivalTime,
			Stops:            f.ReturnStops,
			StopsLabel:       stopsLabel(f.ReturnStops),
			Route:            f.ReturnRoute,
			RouteDisplay:     routeDisplay(f.ReturnRoute),
		}
	}
	return v
}

func formatFlights(flights []flight.ScrapedFlight, budget float64) []FlightView {
	out := make([]FlightView, len(flights))
	for i, f := range flights {
		out[i] = formatFlight(f, budget)
	}
	return out
}

func stopsLabel(stops int) string {
	switch {
	case stops <= 0:
		return "Direct"
	case stops == 1:
		return "1 stop"
	}
	return fmt.Sprintf("%d stops", stops)
}

func routeDisplay(route []string) string {
	return strings.Join(route, " -> ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
