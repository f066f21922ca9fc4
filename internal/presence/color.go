package presence

import (
	"fmt"
	"hash/fnv"
)

// ColorFor returns a stable hex color for a user. The hue comes from a hash
// of the ID; saturation and lightness are fixed so names stay readable on
// both light and dark calendars.
func ColorFor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return hueColor(float64(h.Sum32() % 360))
}

// assignColors gives every user a color, shifting hues that collide with a
// color already taken in the same trip.
func assignColors(userIDs []string) map[string]string {
	colors := make(map[string]string, len(userIDs))
	taken := make(map[string]bool, len(userIDs))
	for _, uid := range userIDs {
		h := fnv.New32a()
		_, _ = h.Write([]byte(uid))
		hue := float64(h.Sum32() % 360)
		c := hueColor(hue)
		for step := 1; taken[c] && step < 12; step++ {
			c = hueColor(hue + float64(step*30))
		}
		taken[c] = true
		colors[uid] = c
	}
	return colors
}

func hueColor(hue float64) string {
	r, g, b := hslToRGB(hue, 0.45, 0.6)
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

// hslToRGB converts h (degrees), s and l (0-1) to 8-bit RGB.
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	for h >= 360 {
		h -= 360
	}
	h /= 360

	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q

	return channel(p, q, h+1.0/3), channel(p, q, h), channel(p, q, h-1.0/3)
}

func channel(p, q, t float64) uint8 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	var v float64
	switch {
	case t < 1.0/6:
		v = p + (q-p)*6*t
	case t < 1.0/2:
		v = q
	case t < 2.0/3:
		v = p + (q-p)*(2.0/3-t)*6
	default:
		v = p
	}
	return uint8(v*255 + 0.5)
}
