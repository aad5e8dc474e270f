package telemetry

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yegors/co-track/internal/physics"
	"github.com/yegors/co-track/internal/track"
	"github.com/yegors/co-track/pkg/logger"
)

// SimulatorConfig is the initial state and controls of the simulated aircraft
type SimulatorConfig struct {
	StartLat       float64
	StartLon       float64
	StartAltitude  float64 // ft
	Heading        float64 // degrees true
	Speed          float64 // kts
	ClimbRate      float64 // ft/min
	CruiseAltitude float64 // ft
	TurnRate       float64 // deg/s, positive turns right
}

// Simulator is a dead-reckoning Source for running without an upstream server
type Simulator struct {
	mu       sync.Mutex
	cfg      SimulatorConfig
	lat      float64
	lon      float64
	altitude float64
	heading  float64
	last     time.Time
	started  bool
	routeID  string
	now      func() time.Time
	logger   *logger.Logger
}

// NewSimulator creates a simulator at the configured start position
func NewSimulator(cfg SimulatorConfig, log *logger.Logger) *Simulator {
	s := &Simulator{
		cfg:    cfg,
		now:    time.Now,
		logger: log.Named("simulation"),
	}
	s.resetLocked()
	return s
}

// Fetch advances the aircraft to the current time and returns one sample.
// known is ignored; every call yields the next position.
func (s *Simulator) Fetch(ctx context.Context, known int) (Batch, error) {
	if err := ctx.Err(); err != nil {
		return Batch{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.started {
		if dt := now.Sub(s.last).Seconds(); dt > 0 {
			s.stepLocked(dt)
		}
	}
	s.started = true
	s.last = now

	return Batch{RouteID: s.routeID, Points: []track.Sample{s.sampleLocked()}}, nil
}

// Step advances the simulation by dt seconds and returns the new sample
func (s *Simulator) Step(dt float64) track.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepLocked(dt)
	return s.sampleLocked()
}

// Reset returns the aircraft to its start position under a new route id
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.logger.Info("Simulation reset", logger.String("route_id", s.routeID))
}

func (s *Simulator) resetLocked() {
	s.lat = s.cfg.StartLat
	s.lon = s.cfg.StartLon
	s.altitude = s.cfg.StartAltitude
	s.heading = physics.NormalizeHeading(s.cfg.Heading)
	s.started = false
	s.routeID = uuid.NewString()
}

// stepLocked updates position using dead reckoning
func (s *Simulator) stepLocked(dt float64) {
	s.heading = physics.NormalizeHeading(s.heading + s.cfg.TurnRate*dt)

	// 1 knot = 1/3600 NM per second
	distanceNM := s.cfg.Speed * dt / 3600
	v := physics.HeadingToVector(s.heading, distanceNM)

	// 1 degree latitude is 60 NM, longitude shrinks with cos(lat)
	s.lat += v.Y / 60
	s.lon += v.X / (60 * math.Cos(physics.DegToRad(s.lat)))

	s.altitude = s.climbLocked(dt)
}

func (s *Simulator) climbLocked(dt float64) float64 {
	target := s.cfg.CruiseAltitude
	delta := math.Abs(s.cfg.ClimbRate) * dt / physics.SecondsPerMinute
	switch {
	case s.altitude < target:
		return math.Min(target, s.altitude+delta)
	case s.altitude > target:
		return math.Max(target, s.altitude-delta)
	default:
		return s.altitude
	}
}

func (s *Simulator) sampleLocked() track.Sample {
	return track.Sample{
		Lat:      s.lat,
		Lon:      s.lon,
		Heading:  s.heading,
		Altitude: s.altitude,
	}
}
