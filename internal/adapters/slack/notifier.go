package slackad

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"review_notifier/internal/adapters/observability"
	"review_notifier/internal/domain"
	"review_notifier/internal/shared"
)

type Options struct {
	WebhookURL        string
	Location          *time.Location
	PlayDeveloperID   string
	PlayApplicationID string
	RPS               int
}

// Notifier posts reviews to a Slack incoming webhook.
type Notifier struct {
	url   string
	hc    *http.Client
	rl    *rate.Limiter
	loc   *time.Location
	devID string
	appID string
}

func New(o Options) (*Notifier, error) {
	if o.WebhookURL == "" {
		return nil, fmt.Errorf("slack webhook url is required")
	}
	if o.RPS <= 0 {
		o.RPS = 1
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return &Notifier{
		url: o.WebhookURL,
		hc: &http.Client{
			Timeout:   10 * time.Second,
			Transport: &observability.Transport{Service: "slack"},
		},
		rl:    rate.NewLimiter(rate.Limit(o.RPS), o.RPS),
		loc:   o.Location,
		devID: o.PlayDeveloperID,
		appID: o.PlayApplicationID,
	}, nil
}

func (n *Notifier) Notify(ctx context.Context, r domain.Review) error {
	msg, err := BuildMessage(r, n.loc, n.reviewLink(r))
	if err != nil {
		log.Error().Err(err).Str("platform", string(r.Platform)).Str("id", r.ID).
			Msg("failed to format review; posting raw")
		msg = fallbackMessage(r)
	}
	return n.post(ctx, msg)
}

func (n *Notifier) reviewLink(r domain.Review) string {
	if r.Platform != domain.Android || n.devID == "" || n.appID == "" {
		return ""
	}
	return PlayConsoleURL(n.devID, n.appID, r.ID)
}

// post retries rate limiting, 5xx and transport failures; other 4xx fail at once.
func (n *Notifier) post(ctx context.Context, msg *slack.WebhookMessage) error {
	var lastErr error
	for i := 0; i < shared.MaxAttempts; i++ {
		if err := n.rl.Wait(ctx); err != nil {
			return err
		}
		err := slack.PostWebhookCustomHTTPContext(ctx, n.url, n.hc, msg)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err

		wait := shared.Backoff(i)
		var limited *slack.RateLimitedError
		var status interface{ Retryable() bool }
		switch {
		case errors.As(err, &limited):
			if limited.RetryAfter > 0 {
				wait = limited.RetryAfter
			}
		case errors.As(err, &status):
			if !status.Retryable() {
				return fmt.Errorf("slack webhook: %w", err)
			}
		}

		log.Warn().Err(err).Int("attempt", i+1).Dur("wait", wait).Msg("slack post failed")
		if i == shared.MaxAttempts-1 || !shared.SleepCtx(ctx, wait) {
			break
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("slack webhook: %w", lastErr)
}
