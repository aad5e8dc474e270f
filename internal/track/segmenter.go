package track

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/yegors/co-track/internal/colorramp"
	"github.com/yegors/co-track/internal/render"
)

// Sample is a single aircraft position report
type Sample struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Heading  float64 `json:"hdg"` // degrees
	Altitude float64 `json:"alt"`
}

// Point returns the sample as a lon/lat point
func (s Sample) Point() orb.Point {
	return orb.Point{s.Lon, s.Lat}
}

// Segment is a run of consecutive route points drawn with one style
type Segment struct {
	Points orb.LineString
	Band   int
	Style  render.Style
}

// Options configures bucketing and coloring of the route
type Options struct {
	BucketWidth float64 // altitude span of one color step
	Low         colorramp.Color
	High        colorramp.Color
	MinAltitude float64 // altitude mapped to Low
	MaxAltitude float64 // altitude mapped to High
	StrokeWidth float64
}

// Update reports what Append did to the segment list
type Update struct {
	Index   int  // index of the active segment
	Created bool // a new segment was started
	Segment Segment
}

// Segmenter owns the route and incrementally splits it into
// altitude-banded segments. Only the last segment is ever mutated.
type Segmenter struct {
	opts     Options
	route    []Sample
	segments []Segment
	active   *int
}

// NewSegmenter creates an empty segmenter
func NewSegmenter(opts Options) *Segmenter {
	if opts.BucketWidth <= 0 {
		opts.BucketWidth = 1000
	}
	return &Segmenter{opts: opts}
}

// Bucket classifies an altitude
func (s *Segmenter) Bucket(altitude float64) int {
	return int(math.Floor(altitude / s.opts.BucketWidth))
}

// Append adds a sample to the route and extends or starts a segment
func (s *Segmenter) Append(sample Sample) Update {
	s.route = append(s.route, sample)
	bucket := s.Bucket(sample.Altitude)

	if len(s.route) == 1 || s.active == nil || bucket != *s.active {
		// seed with the previous point so consecutive segments stay connected
		seed := s.route[max(0, len(s.route)-2):]
		points := make(orb.LineString, 0, len(seed))
		for _, p := range seed {
			points = append(points, p.Point())
		}

		s.segments = append(s.segments, Segment{
			Points: points,
			Band:   bucket,
			Style:  s.styleFor(sample.Altitude),
		})
		s.active = &bucket

		idx := len(s.segments) - 1
		return Update{Index: idx, Created: true, Segment: cloneSegment(s.segments[idx])}
	}

	idx := len(s.segments) - 1
	s.segments[idx].Points = append(s.segments[idx].Points, sample.Point())
	return Update{Index: idx, Created: false, Segment: cloneSegment(s.segments[idx])}
}

// styleFor colors a segment by the normalized altitude of the sample that starts it
func (s *Segmenter) styleFor(altitude float64) render.Style {
	t := 0.0
	if span := s.opts.MaxAltitude - s.opts.MinAltitude; span > 0 {
		t = colorramp.Clamp01((altitude - s.opts.MinAltitude) / span)
	}

	return render.Style{
		StrokeColor: colorramp.Hex(colorramp.ColorAt(s.opts.Low, s.opts.High, t)),
		StrokeWidth: s.opts.StrokeWidth,
	}
}

// Clear resets the route and all segments
func (s *Segmenter) Clear() {
	s.route = nil
	s.segments = nil
	s.active = nil
}

// Len returns the number of samples in the route
func (s *Segmenter) Len() int {
	return len(s.route)
}

// Last returns the most recent sample
func (s *Segmenter) Last() (Sample, bool) {
	if len(s.route) == 0 {
		return Sample{}, false
	}
	return s.route[len(s.route)-1], true
}

// Route returns a copy of the route
func (s *Segmenter) Route() []Sample {
	return append([]Sample(nil), s.route...)
}

// Since returns the samples after the first known ones
func (s *Segmenter) Since(known int) []Sample {
	if known < 0 {
		known = 0
	}
	if known >= len(s.route) {
		return []Sample{}
	}
	return append([]Sample(nil), s.route[known:]...)
}

// Segments returns a copy of the segment list
func (s *Segmenter) Segments() []Segment {
	out := make([]Segment, len(s.segments))
	for i, seg := range s.segments {
		out[i] = cloneSegment(seg)
	}
	return out
}

// Active returns the mutable segment and its index
func (s *Segmenter) Active() (Segment, int, bool) {
	if len(s.segments) == 0 {
		return Segment{}, 0, false
	}
	idx := len(s.segments) - 1
	return cloneSegment(s.segments[idx]), idx, true
}

// ActiveBucket returns the bucket of the mutable segment
func (s *Segmenter) ActiveBucket() (int, bool) {
	if s.active == nil {
		return 0, false
	}
	return *s.active, true
}

func cloneSegment(seg Segment) Segment {
	seg.Points = append(orb.LineString(nil), seg.Points...)
	return seg
}
