package config

import (
	"fmt"
	"os"
	"path"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/yegors/co-track/internal/colorramp"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server    ServerConfig    `toml:"server"`    // HTTP server settings
	Logging   LoggingConfig   `toml:"logging"`   // Application logging settings
	Telemetry TelemetryConfig `toml:"telemetry"` // Position source settings
	Simulator SimulatorConfig `toml:"simulator"` // Built-in simulated aircraft
	Track     TrackConfig     `toml:"track"`     // Route drawing and camera behavior
	Airports  AirportsConfig  `toml:"airports"`  // Airport database and markers
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port             int    `toml:"port"`                  // HTTP port for the server
	Host             string `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	ReadTimeoutSecs  int    `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs int    `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout)
	IdleTimeoutSecs  int    `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	StaticFilesDir   string `toml:"static_files_dir"`      // Directory to serve static files from (e.g., "www")
}

// LoggingConfig contains logging configuration settings
type LoggingConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // console or json
}

// TelemetryConfig selects where position samples come from
type TelemetryConfig struct {
	// Allowed values:
	// - "simulated": built-in dead-reckoning aircraft
	// - "http": poll an upstream position server at {source_url}/position/{known}
	SourceType            string `toml:"source_type"`
	SourceURL             string `toml:"source_url"`
	PollIntervalMs        int    `toml:"poll_interval_ms"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	HeadingReference      string `toml:"heading_reference"` // "true" or "magnetic"
	ManagementURL         string `toml:"management_url"`    // Where ResetRoute is forwarded; defaults to source_url for http sources
}

// SimulatorConfig is the start state of the simulated aircraft
type SimulatorConfig struct {
	StartLat         float64 `toml:"start_lat"`
	StartLon         float64 `toml:"start_lon"`
	StartAltitudeFt  float64 `toml:"start_altitude_ft"`
	HeadingDeg       float64 `toml:"heading_deg"`
	SpeedKts         float64 `toml:"speed_kts"`
	ClimbRateFPM     float64 `toml:"climb_rate_fpm"`
	CruiseAltitudeFt float64 `toml:"cruise_altitude_ft"`
	TurnRateDPS      float64 `toml:"turn_rate_dps"`
}

// TrackConfig contains route coloring, follow and viewport settings
type TrackConfig struct {
	BucketWidthFt    float64 `toml:"bucket_width_ft"`    // Altitude span of one color band
	LowColor         string  `toml:"low_color"`          // #RRGGBB at min_altitude_ft
	HighColor        string  `toml:"high_color"`         // #RRGGBB at max_altitude_ft
	MinAltitudeFt    float64 `toml:"min_altitude_ft"`    // Bottom of the color range
	MaxAltitudeFt    float64 `toml:"max_altitude_ft"`    // Top of the color range
	StrokeWidth      float64 `toml:"stroke_width"`       // Route line width in px
	FollowEnabled    bool    `toml:"follow_enabled"`     // Camera follows the aircraft
	ShowRouteEnabled bool    `toml:"show_route_enabled"` // Route layer visible at start
	HitTolerancePx   float64 `toml:"hit_tolerance_px"`
	PlaneIcon        string  `toml:"plane_icon"`
	PlaneIconScale   float64 `toml:"plane_icon_scale"`
	InitialZoom      float64 `toml:"initial_zoom"`
	ViewportWidth    int     `toml:"viewport_width"`
	ViewportHeight   int     `toml:"viewport_height"`

	// Parsed from LowColor / HighColor by Validate
	Low  colorramp.Color `toml:"-"`
	High colorramp.Color `toml:"-"`
}

// AirportsConfig contains airport database and marker settings
type AirportsConfig struct {
	CSVPath                string            `toml:"csv_path"`    // OurAirports airports.csv, imported when the database is empty
	SQLitePath             string            `toml:"sqlite_path"` // Airport database file
	ReimportOnStart        bool              `toml:"reimport_on_start"`
	SearchRadiusNM         float64           `toml:"search_radius_nm"`
	MaxResults             int               `toml:"max_results"`
	CacheSize              int               `toml:"cache_size"`
	CacheTTLMinutes        int               `toml:"cache_ttl_minutes"`
	IconDir                string            `toml:"icon_dir"`     // URL path prefix of marker icons
	Icons                  map[string]string `toml:"icons"`        // facility type -> icon file
	DefaultIcon            string            `toml:"default_icon"` // Used for types without an icon
	IconScale              float64           `toml:"icon_scale"`
	StrictIcons            bool              `toml:"strict_icons"` // Fail instead of falling back to default_icon
	RefreshIntervalSeconds int               `toml:"refresh_interval_seconds"`

	// Icon URLs joined with IconDir by Validate
	IconURLs       map[string]string `toml:"-"`
	DefaultIconURL string            `toml:"-"`
}

// Facility types shipped with an icon of the same name
var defaultIconTypes = []string{
	"heliport", "small_airport", "medium_airport", "large_airport",
	"seaplane_base", "balloonport", "closed",
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, p := range searchPaths {
		if p != "" && !seen[p] {
			uniquePaths = append(uniquePaths, p)
			seen[p] = true
		}
	}

	var lastErr error
	for _, p := range uniquePaths {
		if _, err := os.Stat(p); err == nil {
			config, err := Load(p)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", p, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", p)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and fills in defaults
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	c.validateLogging()
	if err := c.validateTelemetry(); err != nil {
		return err
	}
	c.validateSimulator()
	if err := c.validateTrack(); err != nil {
		return err
	}
	return c.validateAirports()
}

func (c *Config) validateServer() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = 15
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 60
	}

	// Set default static files directory if not specified
	if c.Server.StaticFilesDir == "" {
		c.Server.StaticFilesDir = "www"
	}
	if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
		return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
	}
	return nil
}

func (c *Config) validateLogging() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

func (c *Config) validateTelemetry() error {
	t := &c.Telemetry
	if t.SourceType == "" {
		t.SourceType = "simulated"
	}
	switch t.SourceType {
	case "simulated":
	case "http":
		if t.SourceURL == "" {
			return fmt.Errorf("telemetry source_url is required for source_type 'http'")
		}
		if t.ManagementURL == "" {
			t.ManagementURL = t.SourceURL
		}
	default:
		return fmt.Errorf("invalid telemetry source type: %s (must be 'simulated' or 'http')", t.SourceType)
	}

	if t.PollIntervalMs == 0 {
		t.PollIntervalMs = 1000
	}
	if t.PollIntervalMs < 50 {
		return fmt.Errorf("poll_interval_ms too small: %d (minimum 50)", t.PollIntervalMs)
	}
	if t.RequestTimeoutSeconds <= 0 {
		t.RequestTimeoutSeconds = 5
	}

	if t.HeadingReference == "" {
		t.HeadingReference = "true"
	}
	if t.HeadingReference != "true" && t.HeadingReference != "magnetic" {
		return fmt.Errorf("invalid heading_reference: %s (must be 'true' or 'magnetic')", t.HeadingReference)
	}
	return nil
}

func (c *Config) validateSimulator() {
	s := &c.Simulator
	if s.StartLat == 0 && s.StartLon == 0 {
		s.StartLat, s.StartLon = 46.9141, 7.4994 // Bern
	}
	if s.SpeedKts == 0 {
		s.SpeedKts = 110
	}
	if s.ClimbRateFPM == 0 {
		s.ClimbRateFPM = 700
	}
	if s.CruiseAltitudeFt == 0 {
		s.CruiseAltitudeFt = 9500
	}
}

func (c *Config) validateTrack() error {
	t := &c.Track
	if t.BucketWidthFt == 0 {
		t.BucketWidthFt = 1000
	}
	if t.BucketWidthFt < 0 {
		return fmt.Errorf("invalid bucket_width_ft: %.0f (must be > 0)", t.BucketWidthFt)
	}
	if t.LowColor == "" {
		t.LowColor = "#00ff00"
	}
	if t.HighColor == "" {
		t.HighColor = "#ff0000"
	}

	var err error
	if t.Low, err = colorramp.ParseHex(t.LowColor); err != nil {
		return fmt.Errorf("invalid low_color: %w", err)
	}
	if t.High, err = colorramp.ParseHex(t.HighColor); err != nil {
		return fmt.Errorf("invalid high_color: %w", err)
	}

	if t.MaxAltitudeFt == 0 {
		t.MaxAltitudeFt = 40000
	}
	if t.MaxAltitudeFt <= t.MinAltitudeFt {
		return fmt.Errorf("max_altitude_ft (%.0f) must be above min_altitude_ft (%.0f)", t.MaxAltitudeFt, t.MinAltitudeFt)
	}

	if t.StrokeWidth <= 0 {
		t.StrokeWidth = 5
	}
	if t.HitTolerancePx <= 0 {
		t.HitTolerancePx = 7
	}
	if t.PlaneIcon == "" {
		t.PlaneIcon = "assets/plane.png"
	}
	if t.PlaneIconScale <= 0 {
		t.PlaneIconScale = 1
	}
	if t.InitialZoom <= 0 {
		t.InitialZoom = 10
	}
	if t.ViewportWidth <= 0 {
		t.ViewportWidth = 1280
	}
	if t.ViewportHeight <= 0 {
		t.ViewportHeight = 720
	}
	return nil
}

func (c *Config) validateAirports() error {
	a := &c.Airports
	if a.SQLitePath == "" {
		a.SQLitePath = "data/airports.db"
	}
	if a.SearchRadiusNM == 0 {
		a.SearchRadiusNM = 25
	}
	if a.SearchRadiusNM < 0 {
		return fmt.Errorf("invalid search_radius_nm: %.1f", a.SearchRadiusNM)
	}
	if a.MaxResults < 0 {
		return fmt.Errorf("invalid max_results: %d", a.MaxResults)
	}
	if a.MaxResults == 0 {
		a.MaxResults = 200
	}
	if a.CacheSize <= 0 {
		a.CacheSize = 128
	}
	if a.CacheTTLMinutes <= 0 {
		a.CacheTTLMinutes = 10
	}
	if a.RefreshIntervalSeconds < 0 {
		return fmt.Errorf("invalid refresh_interval_seconds: %d", a.RefreshIntervalSeconds)
	}

	if a.IconDir == "" {
		a.IconDir = "assets"
	}
	if a.Icons == nil {
		a.Icons = make(map[string]string)
	}
	for _, t := range defaultIconTypes {
		if _, ok := a.Icons[t]; !ok {
			a.Icons[t] = t + ".png"
		}
	}
	a.IconURLs = make(map[string]string, len(a.Icons))
	for t, icon := range a.Icons {
		a.IconURLs[t] = path.Join(a.IconDir, icon)
	}
	if a.DefaultIcon == "" {
		a.DefaultIcon = "small_airport.png"
	}
	a.DefaultIconURL = path.Join(a.IconDir, a.DefaultIcon)
	if a.IconScale <= 0 {
		a.IconScale = 0.7
	}
	return nil
}

// PollInterval returns the telemetry tick
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Telemetry.PollIntervalMs) * time.Millisecond
}

// RequestTimeout returns the telemetry request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Telemetry.RequestTimeoutSeconds) * time.Second
}

// CacheTTL returns how long airport lookups are cached
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Airports.CacheTTLMinutes) * time.Minute
}

// AirportRefresh returns the periodic airport refresh interval, 0 when disabled
func (c *Config) AirportRefresh() time.Duration {
	return time.Duration(c.Airports.RefreshIntervalSeconds) * time.Second
}
