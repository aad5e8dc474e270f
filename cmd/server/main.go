package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/paulmach/orb"
	"github.com/yegors/co-track/internal/airports"
	"github.com/yegors/co-track/internal/api"
	"github.com/yegors/co-track/internal/config"
	"github.com/yegors/co-track/internal/management"
	"github.com/yegors/co-track/internal/mapview"
	"github.com/yegors/co-track/internal/markers"
	"github.com/yegors/co-track/internal/render"
	"github.com/yegors/co-track/internal/storage/sqlite"
	"github.com/yegors/co-track/internal/telemetry"
	"github.com/yegors/co-track/internal/track"
	"github.com/yegors/co-track/internal/websocket"
	"github.com/yegors/co-track/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting co-track server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Airport database
	var airportLookup mapview.AirportLookup
	if err := os.MkdirAll(filepath.Dir(cfg.Airports.SQLitePath), 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", cfg.Airports.SQLitePath))
		os.Exit(1)
	}
	airportStorage, err := sqlite.NewAirportStorage(cfg.Airports.SQLitePath, log)
	if err != nil {
		log.Error("Failed to open airport database, airport markers disabled", logger.Error(err))
	} else {
		defer airportStorage.Close()

		airportService := airports.NewService(airportStorage, airports.Options{
			MaxResults: cfg.Airports.MaxResults,
			CacheSize:  cfg.Airports.CacheSize,
			CacheTTL:   cfg.CacheTTL(),
		}, log)

		if cfg.Airports.CSVPath != "" {
			if err := airportService.ImportCSV(ctx, cfg.Airports.CSVPath, !cfg.Airports.ReimportOnStart); err != nil {
				log.Warn("Failed to import airports", logger.Error(err))
			}
		}
		airportLookup = airportService
	}

	// Telemetry source and upstream management
	var (
		source   telemetry.Source
		commands mapview.Commander
		mgmt     *management.Client
	)
	switch cfg.Telemetry.SourceType {
	case "http":
		headingRef, err := telemetry.ParseHeadingReference(cfg.Telemetry.HeadingReference)
		if err != nil {
			log.Error("Invalid heading reference", logger.Error(err))
			os.Exit(1)
		}
		source = telemetry.NewClient(cfg.Telemetry.SourceURL, cfg.RequestTimeout(), headingRef, log)
		mgmt = management.NewClient(cfg.Telemetry.ManagementURL, cfg.RequestTimeout(), log)
		commands = mgmt
	default:
		source = telemetry.NewSimulator(telemetry.SimulatorConfig{
			StartLat:       cfg.Simulator.StartLat,
			StartLon:       cfg.Simulator.StartLon,
			StartAltitude:  cfg.Simulator.StartAltitudeFt,
			Heading:        cfg.Simulator.HeadingDeg,
			Speed:          cfg.Simulator.SpeedKts,
			ClimbRate:      cfg.Simulator.ClimbRateFPM,
			CruiseAltitude: cfg.Simulator.CruiseAltitudeFt,
			TurnRate:       cfg.Simulator.TurnRateDPS,
		}, log)
	}
	log.Info("Telemetry source configured", logger.String("source_type", cfg.Telemetry.SourceType))

	// Scene and map view
	scene := render.NewScene(render.View{
		Center: orb.Point{cfg.Simulator.StartLon, cfg.Simulator.StartLat},
		Zoom:   cfg.Track.InitialZoom,
		Width:  cfg.Track.ViewportWidth,
		Height: cfg.Track.ViewportHeight,
	}, mapview.Layers, log)

	icons := make(map[markers.FacilityType]string, len(cfg.Airports.IconURLs))
	for t, icon := range cfg.Airports.IconURLs {
		icons[markers.FacilityType(t)] = icon
	}

	view := mapview.New(mapview.Options{
		Track: track.Options{
			BucketWidth: cfg.Track.BucketWidthFt,
			Low:         cfg.Track.Low,
			High:        cfg.Track.High,
			MinAltitude: cfg.Track.MinAltitudeFt,
			MaxAltitude: cfg.Track.MaxAltitudeFt,
			StrokeWidth: cfg.Track.StrokeWidth,
		},
		HitTolerance:   cfg.Track.HitTolerancePx,
		FollowEnabled:  cfg.Track.FollowEnabled,
		ShowRoute:      cfg.Track.ShowRouteEnabled,
		PlaneIcon:      cfg.Track.PlaneIcon,
		PlaneIconScale: cfg.Track.PlaneIconScale,
		Markers: markers.Options{
			Icons:       icons,
			DefaultIcon: cfg.Airports.DefaultIconURL,
			IconScale:   cfg.Airports.IconScale,
			Strict:      cfg.Airports.StrictIcons,
		},
		PollInterval:    cfg.PollInterval(),
		FetchTimeout:    cfg.RequestTimeout(),
		AirportRadiusNM: cfg.Airports.SearchRadiusNM,
		AirportRefresh:  cfg.AirportRefresh(),
	}, scene, airportLookup, source, commands, log)

	// WebSocket bridge
	wsServer := websocket.NewServer(log)
	bridge := mapview.NewBridge(view, scene, wsServer, log)
	scene.SetListener(bridge)
	wsServer.SetMessageHandler(bridge)
	wsServer.SetConnectHandler(bridge.OnConnect)
	wsServer.SetResyncHandler(bridge.Resync)
	go wsServer.Run(ctx)

	if err := view.Start(ctx); err != nil {
		log.Error("Failed to start map view", logger.Error(err))
		os.Exit(1)
	}

	// HTTP server
	shutdownCh := make(chan struct{}, 1)
	requestShutdown := func() {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
	}

	handler := api.NewHandler(view, bridge, airportLookup, wsServer.ClientCount, requestShutdown, cfg, log)
	router := api.NewRouter(handler, wsServer, cfg.Server.StaticFilesDir, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", logger.String("addr", server.Addr), logger.Error(err))
			requestShutdown()
		}
	}()

	// Wait for interrupt signal or a Shutdown management command
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info("Received signal", logger.String("signal", sig.String()))
	case <-shutdownCh:
		log.Info("Shutdown requested")
	}

	log.Info("Shutting down server...")

	log.Info("Stopping map view...")
	view.Stop()

	if mgmt != nil {
		mgmt.Wait()
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}
