// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voltmate/internal/config"
	"voltmate/internal/geo"
	httptransport "voltmate/internal/http"
	"voltmate/internal/infra"
	"voltmate/internal/logger"
	"voltmate/internal/modules/engineer"
	"voltmate/internal/modules/job"
	"voltmate/internal/modules/recommend"
	"voltmate/internal/modules/schedule"
	"voltmate/internal/modules/settings"
	"voltmate/internal/types"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New("info", false)
		bootLog.Fatal().Err(err).Msg("load config")
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Maps.APIKey == "" {
		log.Fatal().Msg("VOLTMATE_MAPS__API_KEY is required")
	}
	mapsClient, err := infra.NewMapsClient(cfg.Maps.APIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("maps client init")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database init")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	usage := geo.NewUsage(redisClient, log)
	geoService := geo.NewService(geo.NewGoogleProvider(mapsClient, cfg.Maps.Region), geo.ServiceOpts{
		Redis:         redisClient,
		Usage:         usage,
		Log:           log,
		RatePerMinute: cfg.Geo.RatePerMinute,
		GeocodeTTL:    time.Duration(cfg.Geo.GeocodeTTLHours) * time.Hour,
		LegTTL:        time.Duration(cfg.Geo.DistanceTTLMinutes) * time.Minute,
	})

	clock := types.RealClock{}
	engineerStore := engineer.NewStore(dbPool)
	settingsStore := settings.NewStore(dbPool)
	jobStore := job.NewStore(dbPool, clock)

	scheduleSvc := schedule.NewService(geoService, jobStore, log)
	recommendSvc := recommend.NewService(engineerStore, settingsStore, geoService,
		scheduleSvc, jobStore, clock, log)

	router := httptransport.NewRouter(recommendSvc, scheduleSvc, engineerStore, log)
	server := httptransport.NewServer(cfg.HTTP.Addr, router, log)

	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("http server")
	}
	log.Info().Msg("shutdown complete")
}
