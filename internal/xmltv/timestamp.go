package xmltv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errBadTimestamp = errors.New("malformed timestamp")

// ParseTimestamp converts an XMLTV date-time ("YYYYMMDDHHMMSS ±HHMM") to a UTC instant.
// Seconds may be omitted (12 digits). A missing offset is read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", errBadTimestamp)
	}
	clock, zone, _ := strings.Cut(s, " ")

	var layout string
	switch len(clock) {
	case 14:
		layout = "20060102150405"
	case 12:
		layout = "200601021504"
	default:
		return time.Time{}, fmt.Errorf("%w: %q", errBadTimestamp, s)
	}
	t, err := time.ParseInLocation(layout, clock, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", errBadTimestamp, s)
	}

	zone = strings.TrimSpace(zone)
	if zone == "" {
		return t, nil
	}
	offset, err := parseOffset(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", errBadTimestamp, s, err)
	}
	return t.Add(-offset), nil
}

// parseOffset reads "+HHMM" / "-HHMM".
func parseOffset(z string) (time.Duration, error) {
	if len(z) != 5 || (z[0] != '+' && z[0] != '-') {
		return 0, fmt.Errorf("offset %q", z)
	}
	h, err := strconv.Atoi(z[1:3])
	if err != nil || h > 14 {
		return 0, fmt.Errorf("offset hours %q", z)
	}
	m, err := strconv.Atoi(z[3:5])
	if err != nil || m > 59 {
		return 0, fmt.Errorf("offset minutes %q", z)
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	if z[0] == '-' {
		d = -d
	}
	return d, nil
}
