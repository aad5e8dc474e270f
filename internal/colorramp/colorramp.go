package colorramp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidHex is returned when a color string cannot be parsed
var ErrInvalidHex = errors.New("invalid hex color")

// Color is a packed 0xRRGGBB value. It is a plain int so that
// interpolation outside [0,1] can carry channels past 8 bits.
type Color int

// Channels splits a color into its red, green and blue components
func (c Color) Channels() (r, g, b int) {
	return (int(c) & 0xff0000) >> 16, (int(c) & 0x00ff00) >> 8, int(c) & 0x0000ff
}

// ColorAt interpolates linearly between low and high.
// t is not clamped: callers pre-clamp, or accept channel overflow.
func ColorAt(low, high Color, t float64) Color {
	lr, lg, lb := low.Channels()
	hr, hg, hb := high.Channels()

	r := int(float64(lr) + t*float64(hr-lr))
	g := int(float64(lg) + t*float64(hg-lg))
	b := int(float64(lb) + t*float64(hb-lb))

	return Color(r<<16 + g<<8 + b)
}

// Hex formats a color as #rrggbb. Only the low 24 bits are kept.
func Hex(c Color) string {
	return fmt.Sprintf("#%06x", uint32(c)&0xffffff)
}

// String implements fmt.Stringer
func (c Color) String() string {
	return Hex(c)
}

// ParseHex parses "#rrggbb" or "rrggbb"
func ParseHex(s string) (Color, error) {
	digits := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(digits) != 6 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	v, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidHex, s)
	}
	return Color(v), nil
}

// Clamp01 limits t to [0,1]
func Clamp01(t float64) float64 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
