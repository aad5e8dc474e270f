package markers

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/paulmach/orb"
	"github.com/yegors/co-track/internal/render"
	"github.com/yegors/co-track/pkg/logger"
)

// ErrUnknownFacilityType is returned in strict mode for a type with no icon
var ErrUnknownFacilityType = errors.New("unknown facility type")

// FacilityType is an OurAirports facility class
type FacilityType string

const (
	Heliport      FacilityType = "heliport"
	SmallAirport  FacilityType = "small_airport"
	MediumAirport FacilityType = "medium_airport"
	LargeAirport  FacilityType = "large_airport"
	SeaplaneBase  FacilityType = "seaplane_base"
	Balloonport   FacilityType = "balloonport"
	Closed        FacilityType = "closed"
)

// KnownTypes lists the facility classes shipped with icons
var KnownTypes = []FacilityType{Heliport, SmallAirport, MediumAirport, LargeAirport, SeaplaneBase, Balloonport, Closed}

// Record is a point of interest placed on the map
type Record struct {
	ID    int64        `json:"id"`
	Ident string       `json:"ident"`
	Name  string       `json:"name"`
	Type  FacilityType `json:"type"`
	Lat   float64      `json:"latitude_deg"`
	Lon   float64      `json:"longitude_deg"`
}

// Label renders the popup content for a record
func (r Record) Label() string {
	return fmt.Sprintf("<div><h2>%s</h2><b>type: %s</div>",
		html.EscapeString(r.Name),
		html.EscapeString(strings.ReplaceAll(string(r.Type), "_", " ")))
}

// Options configures marker icons
type Options struct {
	Layer       string
	Icons       map[FacilityType]string
	DefaultIcon string
	IconScale   float64
	Strict      bool // fail on unknown types instead of using DefaultIcon
}

// Layer holds the current set of markers. Every refresh replaces the whole set.
type Layer struct {
	surface render.Surface
	opts    Options
	records []Record
	handles []render.Handle
	logger  *logger.Logger
}

// NewLayer creates an empty marker layer
func NewLayer(surface render.Surface, opts Options, log *logger.Logger) *Layer {
	if opts.IconScale <= 0 {
		opts.IconScale = 0.7
	}
	return &Layer{
		surface: surface,
		opts:    opts,
		logger:  log.Named("markers"),
	}
}

// ClearAll removes every marker
func (l *Layer) ClearAll() {
	for _, h := range l.handles {
		l.surface.RemoveFeature(h)
	}
	l.handles = nil
	l.records = nil
}

// ReplaceAll clears the layer and adds one marker per record
func (l *Layer) ReplaceAll(records []Record) error {
	if l.opts.Strict {
		for _, r := range records {
			if _, ok := l.opts.Icons[r.Type]; !ok {
				return fmt.Errorf("%w: %q (airport %s)", ErrUnknownFacilityType, r.Type, r.Ident)
			}
		}
	}

	l.ClearAll()

	for _, r := range records {
		style := render.Style{
			Icon:      l.iconFor(r),
			IconScale: l.opts.IconScale,
		}
		h := l.surface.AddFeature(l.opts.Layer, orb.Point{r.Lon, r.Lat}, style, r.Label())
		l.handles = append(l.handles, h)
		l.records = append(l.records, r)
	}

	l.logger.Debug("Markers replaced", logger.Int("count", len(records)))
	return nil
}

func (l *Layer) iconFor(r Record) string {
	if icon, ok := l.opts.Icons[r.Type]; ok {
		return icon
	}
	l.logger.Warn("No icon for facility type, using default",
		logger.String("type", string(r.Type)),
		logger.String("ident", r.Ident))
	return l.opts.DefaultIcon
}

// Records returns the markers currently shown
func (l *Layer) Records() []Record {
	return append([]Record(nil), l.records...)
}

// Len returns the number of markers
func (l *Layer) Len() int {
	return len(l.handles)
}
