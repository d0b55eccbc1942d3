// Package bootstrap wires the adapters selected by the config into the
// services shared by cmd/api and cmd/poller.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"review_notifier/internal/adapters/appstore"
	"review_notifier/internal/adapters/playstore"
	redisad "review_notifier/internal/adapters/redis"
	slackad "review_notifier/internal/adapters/slack"
	"review_notifier/internal/app"
	"review_notifier/internal/domain"
	"review_notifier/internal/shared"
	mysqlrepo "review_notifier/internal/storage/mysql"
)

type Deps struct {
	Poller     *app.PollService
	Deliveries *app.DeliveryService // nil without MYSQL_DSN

	closers []func() error
}

// Close releases the Redis and MySQL connections opened by Build.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

func Build(ctx context.Context, cfg shared.Config) (*Deps, error) {
	d := &Deps{}

	apple, err := appstore.New(cfg.AppleBase, cfg.AppleAppID, cfg.AppleCountry, cfg.FetchRPS, cfg.MaxPages)
	if err != nil {
		return nil, fmt.Errorf("appstore client: %w", err)
	}
	sources := []domain.ReviewSource{apple}

	// without a key the android trigger answers 404 instead of failing every run
	android, err := playstore.NewFromCredentialsFile(ctx, cfg.AndroidPackage, cfg.CredentialFile, cfg.MaxPages)
	if err != nil {
		log.Error().Err(err).Str("file", cfg.CredentialFile).Msg("play store source disabled")
	} else {
		sources = append(sources, android)
	}

	notifier, err := slackad.New(slackad.Options{
		WebhookURL:        cfg.SlackWebhook,
		Location:          cfg.Location,
		PlayDeveloperID:   cfg.PlayDeveloperID,
		PlayApplicationID: cfg.PlayApplicationID,
		RPS:               cfg.NotifyRPS,
	})
	if err != nil {
		return nil, fmt.Errorf("slack notifier: %w", err)
	}

	// nil interfaces, not typed nils, when a store is off
	var ledger domain.Ledger
	if cfg.RedisAddr != "" {
		l := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.LedgerTTL)
		if err := l.Ping(ctx); err != nil {
			_ = l.Close()
			return nil, err
		}
		d.closers = append(d.closers, l.Close)
		ledger = l
		log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.LedgerTTL).Msg("redis ledger enabled")
	}

	var history domain.DeliveryLog
	if cfg.MySQLDSN != "" {
		dsn, err := mysql.ParseDSN(cfg.MySQLDSN)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("parse MYSQL_DSN: %w", err)
		}
		// deliveries scan DATETIME columns into time.Time
		dsn.ParseTime = true
		dsn.Loc = time.UTC

		db, err := sql.Open("mysql", dsn.FormatDSN())
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("sql.Open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			_ = d.Close()
			return nil, fmt.Errorf("db ping: %w", err)
		}
		d.closers = append(d.closers, db.Close)
		repo := mysqlrepo.New(db)
		history = repo
		d.Deliveries = app.NewDeliveryService(repo)
		log.Info().Msg("delivery log enabled")
	}

	d.Poller = app.NewPollService(sources, notifier, ledger, history, cfg.RunFrequency)
	return d, nil
}
