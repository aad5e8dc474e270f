package airports

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/yegors/co-track/internal/markers"
	"github.com/yegors/co-track/internal/physics"
	"github.com/yegors/co-track/internal/storage/sqlite"
	"github.com/yegors/co-track/pkg/logger"
)

// Store is the persistence the service needs
type Store interface {
	ReplaceAll(ctx context.Context, records []markers.Record) error
	QueryBBox(ctx context.Context, box sqlite.BBox) ([]markers.Record, error)
	Count(ctx context.Context) (int, error)
}

// Options configures lookups
type Options struct {
	MaxResults int
	CacheSize  int
	CacheTTL   time.Duration
}

// Service answers "airports around a point" queries
type Service struct {
	store      Store
	cache      *expirable.LRU[string, []markers.Record]
	maxResults int
	logger     *logger.Logger
}

// NewService creates an airport service on top of store
func NewService(store Store, opts Options, log *logger.Logger) *Service {
	if opts.CacheSize <= 0 {
		opts.CacheSize = 128
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	return &Service{
		store:      store,
		cache:      expirable.NewLRU[string, []markers.Record](opts.CacheSize, nil, opts.CacheTTL),
		maxResults: opts.MaxResults,
		logger:     log.Named("airports"),
	}
}

// ImportCSV loads airports.csv into the store. When onlyIfEmpty is set an
// already populated store is left alone.
func (s *Service) ImportCSV(ctx context.Context, path string, onlyIfEmpty bool) error {
	if onlyIfEmpty {
		n, err := s.store.Count(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			s.logger.Info("Airport database already populated", logger.Int("count", n))
			return nil
		}
	}

	records, skipped, err := ReadCSVFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := s.store.ReplaceAll(ctx, records); err != nil {
		return err
	}
	s.cache.Purge()

	s.logger.Info("Imported airports",
		logger.String("path", path),
		logger.Int("count", len(records)),
		logger.Int("skipped", skipped))
	return nil
}

// Lookup returns the airports within radiusNM of (lat, lon), nearest first
func (s *Service) Lookup(ctx context.Context, lat, lon, radiusNM float64) ([]markers.Record, error) {
	if radiusNM <= 0 {
		return nil, fmt.Errorf("invalid radius %.2f", radiusNM)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("invalid position %.5f,%.5f", lat, lon)
	}

	key := fmt.Sprintf("%.4f/%.4f/%.2f", lat, lon, radiusNM)
	if cached, ok := s.cache.Get(key); ok {
		return append([]markers.Record(nil), cached...), nil
	}

	candidates, err := s.store.QueryBBox(ctx, boundingBox(lat, lon, radiusNM))
	if err != nil {
		return nil, err
	}

	type hit struct {
		rec  markers.Record
		dist float64
	}
	hits := make([]hit, 0, len(candidates))
	for _, c := range candidates {
		d := physics.HaversineNM(lat, lon, c.Lat, c.Lon)
		if d <= radiusNM {
			hits = append(hits, hit{rec: c, dist: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if s.maxResults > 0 && len(hits) > s.maxResults {
		hits = hits[:s.maxResults]
	}

	out := make([]markers.Record, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	s.cache.Add(key, out)

	s.logger.Debug("Airport lookup",
		logger.Float64("lat", lat),
		logger.Float64("lon", lon),
		logger.Float64("radius_nm", radiusNM),
		logger.Int("candidates", len(candidates)),
		logger.Int("results", len(out)))

	return append([]markers.Record(nil), out...), nil
}

// boundingBox returns a window containing every point within radiusNM
func boundingBox(lat, lon, radiusNM float64) sqlite.BBox {
	dLat := radiusNM / 60
	box := sqlite.BBox{
		MinLat: math.Max(-90, lat-dLat),
		MaxLat: math.Min(90, lat+dLat),
		MinLon: -180,
		MaxLon: 180,
	}

	// near the poles every longitude is in range
	if box.MinLat == -90 || box.MaxLat == 90 {
		return box
	}
	cosLat := math.Cos(physics.DegToRad(math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat))))
	dLon := radiusNM / (60 * cosLat)
	if dLon >= 180 {
		return box
	}

	box.MinLon = wrapLon(lon - dLon)
	box.MaxLon = wrapLon(lon + dLon)
	return box
}

func wrapLon(lon float64) float64 {
	switch {
	case lon < -180:
		return lon + 360
	case lon > 180:
		return lon - 360
	default:
		return lon
	}
}
