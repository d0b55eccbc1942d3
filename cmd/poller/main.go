package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"review_notifier/internal/adapters/observability"
	"review_notifier/internal/bootstrap"
	"review_notifier/internal/domain"
	"review_notifier/internal/shared"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	platform := flag.String("platform", "", "poll only this platform (apple|android); empty polls all")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := shared.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("wiring failed")
	}

	log.Info().
		Str("platform", *platform).
		Int("workers", cfg.Workers).
		Dur("window", cfg.RunFrequency).
		Msg("poller starting")

	var results []domain.PollResult
	if *platform != "" {
		p, perr := domain.ParsePlatform(*platform)
		if perr != nil {
			_ = deps.Close()
			log.Fatal().Err(perr).Str("platform", *platform).Msg("bad -platform")
		}
		var res domain.PollResult
		res, err = deps.Poller.Poll(ctx, p)
		results = append(results, res)
	} else {
		results, err = deps.Poller.PollAll(ctx, cfg.Workers)
	}

	for _, r := range results {
		if r.Platform == "" {
			continue
		}
		log.Info().
			Str("platform", string(r.Platform)).
			Str("run_id", r.RunID).
			Int("notified", r.Notified).
			Int("duplicates", r.Duplicates).
			Int("failed", r.Failed).
			Msg("run result")
	}
	_ = deps.Close()

	if err != nil {
		log.Error().Err(err).Msg("poll completed with errors")
		os.Exit(1)
	}
	log.Info().Msg("poll completed")
}
