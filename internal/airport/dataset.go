package airport

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

//go:embed airports.csv
var embeddedAirports []byte

const (
	cityFuzzyCutoff      = 0.7
	cityFuzzyMatches     = 3
	canonicalFuzzyCutoff = 0.82
)

// Facility names containing any of these are not served by commercial flights.
var disallowedNameKeywords = []string{
	"heliport",
	"helipad",
	"helistop",
	"helicopter",
	"seaplane",
	"skyport",
	"seaport",
	"amphibious",
	"water aerodrome",
}

var commercialTypes = map[string]bool{
	"airport":        true,
	"large_airport":  true,
	"medium_airport": true,
	"small_airport":  true,
}

// columnAliases maps each column the loader reads to the header names used by
// the OurAirports and airportsdata exports as well as the embedded table.
var columnAliases = map[string][]string{
	"iata":              {"iata", "iata_code"},
	"name":              {"name"},
	"city":              {"city", "municipality"},
	"country":           {"country", "iso_country"},
	"latitude":          {"latitude", "latitude_deg", "lat"},
	"longitude":         {"longitude", "longitude_deg", "lon"},
	"type":              {"type"},
	"scheduled_service": {"scheduled_service"},
}

var requiredColumns = []string{"iata", "name", "city", "country", "latitude", "longitude"}

// Dataset is an immutable, indexed set of commercial airports.
type Dataset struct {
	airports  []Candidate
	byCode    map[string]Candidate
	byCity    map[string][]Candidate
	cityKeys  []string
	canonical map[string]string
	canonKeys []string
	rules     PriorityRules
}

// LoadEmbedded parses the airport table compiled into the binary.
func LoadEmbedded(rules PriorityRules) (*Dataset, error) {
	return Load(bytes.NewReader(embeddedAirports), rules)
}

// LoadFile parses an airport CSV from disk.
func LoadFile(path string, rules PriorityRules) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening airport dataset %s: %w", path, err)
	}
	defer f.Close()
	return Load(f, rules)
}

// Load parses a CSV with a header row naming at least the columns
// iata, name, city, country, latitude and longitude, under their own names or
// the OurAirports/airportsdata equivalents. The type and scheduled_service
// columns are optional. Rows that are not viable commercial airports are
// skipped.
func Load(r io.Reader, rules PriorityRules) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading airport dataset header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var airports []Candidate
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading airport dataset: %w", err)
		}
		c, ok := parseRow(rec, cols)
		if !ok {
			continue
		}
		airports = append(airports, c)
	}

	return newDataset(airports, rules), nil
}

// mapColumns resolves every known column to its header index and reports all
// required columns that are absent.
func mapColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}

	cols := make(map[string]int, len(columnAliases))
	for col, aliases := range columnAliases {
		for _, a := range aliases {
			if i, ok := index[a]; ok {
				cols[col] = i
				break
			}
		}
	}

	var missing []string
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("airport dataset missing columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func parseRow(rec []string, cols map[string]int) (Candidate, bool) {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	code := strings.ToUpper(field("iata"))
	name := field("name")
	city := field("city")
	kind := strings.ToLower(field("type"))

	if !isIATACode(code) || city == "" {
		return Candidate{}, false
	}
	lowerName := strings.ToLower(name)
	for _, kw := range disallowedNameKeywords {
		if strings.Contains(lowerName, kw) {
			return Candidate{}, false
		}
	}
	if kind != "" && !commercialTypes[kind] {
		return Candidate{}, false
	}
	if strings.EqualFold(field("scheduled_service"), "no") {
		return Candidate{}, false
	}

	lat, err := strconv.ParseFloat(field("latitude"), 64)
	if err != nil {
		return Candidate{}, false
	}
	lon, err := strconv.ParseFloat(field("longitude"), 64)
	if err != nil {
		return Candidate{}, false
	}
	if name == "" {
		name = code
	}

	return Candidate{
		Code:      code,
		Name:      name,
		City:      city,
		Country:   field("country"),
		Latitude:  lat,
		Longitude: lon,
		Kind:      kind,
	}, true
}

func isIATACode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func newDataset(airports []Candidate, rules PriorityRules) *Dataset {
	d := &Dataset{
		byCode:    make(map[string]Candidate, len(airports)),
		byCity:    make(map[string][]Candidate),
		canonical: make(map[string]string),
		rules:     rules,
	}

	for _, a := range airports {
		if _, dup := d.byCode[a.Code]; dup {
			continue
		}
		d.airports = append(d.airports, a)
		d.byCode[a.Code] = a

		lowerCity := strings.ToLower(a.City)
		d.byCity[lowerCity] = append(d.byCity[lowerCity], a)

		// First row wins so the canonical spelling is stable.
		canon := a.City
		if a.Country != "" {
			canon = a.City + ", " + a.Country
		}
		if _, ok := d.canonical[lowerCity]; !ok {
			d.canonical[lowerCity] = canon
			d.canonKeys = append(d.canonKeys, lowerCity)
		}
		if lc := strings.ToLower(canon); lc != lowerCity {
			if _, ok := d.canonical[lc]; !ok {
				d.canonical[lc] = canon
				d.canonKeys = append(d.canonKeys, lc)
			}
		}
	}

	for city, list := range d.byCity {
		sort.SliceStable(list, func(i, j int) bool {
			return rules.score(list[i]).less(rules.score(list[j]))
		})
		d.cityKeys = append(d.cityKeys, city)
	}
	sort.Strings(d.cityKeys)

	return d
}

// Len reports the number of viable airports.
func (d *Dataset) Len() int { return len(d.airports) }

// Lookup returns the airport with the given IATA code.
func (d *Dataset) Lookup(code string) (Candidate, bool) {
	c, ok := d.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

// Nearest returns up to n airports closest to the point, ordered by distance
// and then priority, each carrying its distance rounded to 0.01 km.
func (d *Dataset) Nearest(lat, lon float64, n int) []Candidate {
	type ranked struct {
		km float64
		c  Candidate
		p  priority
	}
	all := make([]ranked, len(d.airports))
	for i, a := range d.airports {
		all[i] = ranked{km: distanceKM(lat, lon, a.Latitude, a.Longitude), c: a, p: d.rules.score(a)}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].km != all[j].km {
			return all[i].km < all[j].km
		}
		return all[i].p.less(all[j].p)
	})

	if n > len(all) {
		n = len(all)
	}
	out := make([]Candidate, 0, n)
	for _, r := range all[:n] {
		out = append(out, r.c.WithDistance(round2(r.km)))
	}
	return out
}

// ByCity returns up to n airports for a city name. An exact case-insensitive
// match wins; a "City, Country" query is retried on its city part; otherwise
// airports from the closest-spelled cities are merged, deduplicated by code.
func (d *Dataset) ByCity(city string, n int) []Candidate {
	lower := strings.ToLower(strings.Join(strings.Fields(city), " "))
	if lower == "" || n <= 0 {
		return nil
	}
	if list, ok := d.byCity[lower]; ok {
		return head(list, n)
	}
	if i := strings.IndexByte(lower, ','); i > 0 {
		if list, ok := d.byCity[strings.TrimSpace(lower[:i])]; ok {
			return head(list, n)
		}
	}

	seen := make(map[string]bool)
	var out []Candidate
	for _, match := range closeMatches(lower, d.cityKeys, cityFuzzyMatches, cityFuzzyCutoff) {
		for _, c := range d.byCity[match] {
			if seen[c.Code] {
				continue
			}
			seen[c.Code] = true
			out = append(out, c)
			if len(out) >= n {
				return out
			}
		}
	}
	return out
}

// CanonicalCity maps free text to a known "City, Country" spelling, by exact
// or close match over city names and "city, country" pairs. Returns "" when
// nothing is close enough.
func (d *Dataset) CanonicalCity(name string) string {
	lower := strings.ToLower(strings.Join(strings.Fields(name), " "))
	if lower == "" {
		return ""
	}
	if canon, ok := d.canonical[lower]; ok {
		return canon
	}
	if m := closeMatches(lower, d.canonKeys, 1, canonicalFuzzyCutoff); len(m) > 0 {
		return d.canonical[m[0]]
	}
	return ""
}

// canonicalFor returns the canonical spelling for an airport's city.
func (d *Dataset) canonicalFor(c Candidate) string {
	if canon, ok := d.canonical[strings.ToLower(c.City)]; ok {
		return canon
	}
	return c.City
}

func head(list []Candidate, n int) []Candidate {
	if n > len(list) {
		n = len(list)
	}
	out := make([]Candidate, n)
	copy(out, list[:n])
	return out
}
