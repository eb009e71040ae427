package metrics

import (
	"fmt"
	"time"
)

// DateLayout is the accepted form of report range bounds.
const DateLayout = "2006-01-02"

// ParseDateRange parses optional YYYY-MM-DD bounds in UTC. The end day is inclusive.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	if start != "" {
		t, err := time.Parse(DateLayout, start)
		if err != nil {
			return r, fmt.Errorf("invalid start date %q: %w", start, err)
		}
		r.Start = &t
	}
	if end != "" {
		t, err := time.Parse(DateLayout, end)
		if err != nil {
			return r, fmt.Errorf("invalid end date %q: %w", end, err)
		}
		t = t.Add(24*time.Hour - time.Nanosecond)
		r.End = &t
	}
	if r.Start != nil && r.End != nil && r.End.Before(*r.Start) {
		return r, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return r, nil
}
