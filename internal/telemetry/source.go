package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/co-track/internal/physics"
	"github.com/yegors/co-track/internal/track"
)

// ErrNoData is returned when the source has nothing to report yet
var ErrNoData = errors.New("no telemetry data")

// Batch is an incremental position update
type Batch struct {
	RouteID string         `json:"id"`
	Points  []track.Sample `json:"points"`
}

// Source yields position samples. known is the number of samples of the
// current route the caller already has.
type Source interface {
	Fetch(ctx context.Context, known int) (Batch, error)
}

// Resetter is implemented by sources that can restart their own route
type Resetter interface {
	Reset()
}

// HeadingReference tells whether reported headings are true or magnetic
type HeadingReference string

const (
	HeadingTrue     HeadingReference = "true"
	HeadingMagnetic HeadingReference = "magnetic"
)

// ParseHeadingReference validates a configured heading reference
func ParseHeadingReference(s string) (HeadingReference, error) {
	switch HeadingReference(s) {
	case "", HeadingTrue:
		return HeadingTrue, nil
	case HeadingMagnetic:
		return HeadingMagnetic, nil
	default:
		return "", fmt.Errorf("invalid heading reference %q", s)
	}
}

// toTrue rewrites magnetic headings to true headings in place
func toTrue(points []track.Sample, date time.Time) {
	for i := range points {
		p := &points[i]
		p.Heading = physics.MagneticToTrue(p.Heading, p.Lat, p.Lon, p.Altitude, date)
	}
}
