// Package servertime resolves daily reset boundaries in a server timezone.
package servertime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidBoundary is returned for boundaries that are not "HH:MM".
var ErrInvalidBoundary = errors.New("servertime: invalid boundary")

// Clock knows the server timezone and the current instant.
type Clock struct {
	Location *time.Location
	Now      func() time.Time
}

// New returns a clock for loc using the wall clock.
func New(loc *time.Location) *Clock {
	return &Clock{Location: loc}
}

func (c *Clock) location() *time.Location {
	if c == nil || c.Location == nil {
		return time.Local
	}
	return c.Location
}

// Current returns now in the server timezone.
func (c *Clock) Current() time.Time {
	now := time.Now
	if c != nil && c.Now != nil {
		now = c.Now
	}
	return now().In(c.location())
}

// LastBoundary returns the most recent server-time occurrence of hhmm that is
// not after now. A comma separated list picks the latest such boundary.
func (c *Clock) LastBoundary(hhmm string) (time.Time, error) {
	boundaries, err := parseBoundaries(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	now := c.Current()
	var latest time.Time
	for _, b := range boundaries {
		candidate := b.on(now)
		if candidate.After(now) {
			candidate = candidate.AddDate(0, 0, -1)
		}
		if candidate.After(latest) {
			latest = candidate
		}
	}
	return latest, nil
}

// NextBoundary returns the earliest occurrence of hhmm strictly after now.
func (c *Clock) NextBoundary(hhmm string) (time.Time, error) {
	boundaries, err := parseBoundaries(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	now := c.Current()
	var next time.Time
	for _, b := range boundaries {
		candidate := b.on(now)
		if !candidate.After(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}
	return next, nil
}

type boundary struct {
	hour, minute int
}

func (b boundary) on(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), b.hour, b.minute, 0, 0, day.Location())
}

func parseBoundaries(list string) ([]boundary, error) {
	parts := strings.Split(list, ",")
	out := make([]boundary, 0, len(parts))
	for _, part := range parts {
		hour, minute, err := ParseBoundary(part)
		if err != nil {
			return nil, err
		}
		out = append(out, boundary{hour: hour, minute: minute})
	}
	return out, nil
}

// ParseBoundary splits "HH:MM" into hour and minute.
func ParseBoundary(hhmm string) (int, int, error) {
	hhmm = strings.TrimSpace(hhmm)
	hourText, minuteText, ok := strings.Cut(hhmm, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidBoundary, hhmm)
	}
	hour, err := strconv.Atoi(hourText)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidBoundary, hhmm)
	}
	minute, err := strconv.Atoi(minuteText)
	if err != nil || minute < 0 || minute > 59 || len(minuteText) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidBoundary, hhmm)
	}
	return hour, minute, nil
}

// ParseLocation accepts an IANA zone name, "UTC", or a fixed offset such as
// "+08:00", "-0500" or "+8".
func ParseLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	if name[0] == '+' || name[0] == '-' {
		return parseOffset(name)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("servertime: load location %q: %w", name, err)
	}
	return loc, nil
}

func parseOffset(text string) (*time.Location, error) {
	sign := 1
	if text[0] == '-' {
		sign = -1
	}
	body := strings.ReplaceAll(text[1:], ":", "")
	var hours, minutes int
	var err error
	switch len(body) {
	case 1, 2:
		hours, err = strconv.Atoi(body)
	case 4:
		hours, err = strconv.Atoi(body[:2])
		if err == nil {
			minutes, err = strconv.Atoi(body[2:])
		}
	default:
		err = fmt.Errorf("bad length")
	}
	if err != nil || hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("servertime: invalid offset %q", text)
	}
	offset := sign * (hours*3600 + minutes*60)
	return time.FixedZone(fixedZoneName(offset), offset), nil
}

func fixedZoneName(offset int) string {
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("UTC%c%02d:%02d", sign, offset/3600, offset%3600/60)
}
