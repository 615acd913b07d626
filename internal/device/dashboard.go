package device

import (
	"fmt"
	"strings"

	"github.com/example/sems-monitoring/internal/status"
)

type Filter string

const (
	FilterAll         Filter = "All"
	FilterActivated   Filter = "Activated"
	FilterDeactivated Filter = "Deactivated"
	FilterTampered    Filter = "Tampered Meter"
	FilterOutage      Filter = "Outage Detected"
)

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterActivated, FilterDeactivated, FilterTampered, FilterOutage:
		return f, nil
	default:
		return "", fmt.Errorf("unknown status filter %q", s)
	}
}

func (f Filter) matches(d Device) bool {
	switch f {
	case FilterAll:
		return true
	case FilterActivated:
		return d.Status == status.Activated
	case FilterDeactivated:
		return d.Status == status.Deactivated
	case FilterTampered:
		return d.Tampered
	case FilterOutage:
		return d.Outage
	default:
		return false
	}
}

// Search keeps devices whose name, address or contact number contains term
// (case-insensitive) and that match the filter.
func Search(devices []Device, term string, f Filter) []Device {
	term = strings.ToLower(term)
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if !f.matches(d) {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(d.Name), term) &&
			!strings.Contains(strings.ToLower(d.Address), term) &&
			!strings.Contains(strings.ToLower(d.ContactNumber), term) {
			continue
		}
		out = append(out, d)
	}
	return out
}

type Summary struct {
	Total              int    `json:"total"`
	Tampered           int    `json:"tampered"`
	Outages            int    `json:"outages"`
	MostOutageLocation string `json:"mostOutageLocation"`
}

// Summarize counts flagged devices. Ties for the most affected location go to
// the location that reached the count first in the given order.
func Summarize(devices []Device) Summary {
	s := Summary{Total: len(devices), MostOutageLocation: "N/A"}
	counts := map[string]int{}
	best := 0
	for _, d := range devices {
		if d.Tampered {
			s.Tampered++
		}
		if !d.Outage {
			continue
		}
		s.Outages++
		loc := d.Address
		if loc == "" {
			loc = "Unknown"
		}
		counts[loc]++
		if counts[loc] > best {
			best = counts[loc]
			s.MostOutageLocation = loc
		}
	}
	return s
}
