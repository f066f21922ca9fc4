// Package clock provides wall-clock arithmetic for HH:MM itinerary times.
//
// Times carry no date and no timezone. Durations are computed modulo 24 hours so an
// event that starts at 23:30 and ends at 00:30 lasts 60 minutes.
package clock

import (
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the length of the wall-clock cycle.
const MinutesPerDay = 24 * 60

// Parse converts an HH:MM string to minutes since midnight.
// Single-digit hours ("9:05") are accepted; minutes must have two digits.
func Parse(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(m) != 2 || h == "" || len(h) > 2 || !digits(h) || !digits(m) {
		return 0, fmt.Errorf("invalid clock time %q: want HH:MM", s)
	}

	hours, err := strconv.Atoi(h)
	if err != nil || hours < 0 || hours > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	return hours*60 + minutes, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Valid reports whether s is a well-formed HH:MM time.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Minutes is the lenient form of Parse used for ordering.
// Unparsable input sorts as midnight.
func Minutes(s string) int {
	v, err := Parse(s)
	if err != nil {
		return 0
	}
	return v
}

// Format renders minutes since midnight as HH:MM, wrapping into [00:00, 23:59].
func Format(minutes int) string {
	minutes = normalize(minutes)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Add shifts an HH:MM time by the given number of minutes, wrapping at midnight.
func Add(s string, minutes int) (string, error) {
	start, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Format(start + minutes), nil
}

// Duration returns the minutes from start to end modulo 24 hours.
// Equal times yield zero.
func Duration(start, end string) (int, error) {
	s, err := Parse(start)
	if err != nil {
		return 0, err
	}
	e, err := Parse(end)
	if err != nil {
		return 0, err
	}
	return normalize(e - s), nil
}

// Height converts an event's duration into a display magnitude.
// Zero-length or unparsable events get a quarter-hour so they stay visible.
func Height(start, end string, pxPerHour float64) float64 {
	d, err := Duration(start, end)
	if err != nil || d == 0 {
		d = 15
	}
	return float64(d) / 60 * pxPerHour
}

func normalize(minutes int) int {
	minutes %= MinutesPerDay
	if minutes < 0 {
		minutes += MinutesPerDay
	}
	return minutes
}
