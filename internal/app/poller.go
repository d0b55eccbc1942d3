package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"review_notifier/internal/adapters/observability"
	"review_notifier/internal/domain"
)

// PollService runs the fetch, filter and notify cycle for each configured store.
type PollService struct {
	sources  map[domain.Platform]domain.ReviewSource
	notifier domain.Notifier
	ledger   domain.Ledger      // optional
	history  domain.DeliveryLog // optional
	window   time.Duration
	now      func() time.Time
}

func NewPollService(sources []domain.ReviewSource, n domain.Notifier, ledger domain.Ledger, history domain.DeliveryLog, window time.Duration) *PollService {
	m := make(map[domain.Platform]domain.ReviewSource, len(sources))
	for _, s := range sources {
		m[s.Platform()] = s
	}
	return &PollService{
		sources:  m,
		notifier: n,
		ledger:   ledger,
		history:  history,
		window:   window,
		now:      time.Now,
	}
}

// WithClock replaces time.Now; tests use it to pin the window.
func (s *PollService) WithClock(now func() time.Time) *PollService {
	s.now = now
	return s
}

// Platforms returns the configured platforms in run order.
func (s *PollService) Platforms() []domain.Platform {
	var out []domain.Platform
	for _, p := range domain.Platforms {
		if _, ok := s.sources[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Poll posts every review of platform updated within the window. Reviews come
// newest first, so the first one older than the window ends the run.
func (s *PollService) Poll(ctx context.Context, p domain.Platform) (domain.PollResult, error) {
	src, ok := s.sources[p]
	if !ok {
		return domain.PollResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownPlatform, p)
	}

	res := domain.PollResult{RunID: uuid.NewString(), Platform: p}
	l := log.With().Str("run_id", res.RunID).Str("platform", string(p)).Logger()
	from := s.now().Add(-s.window)

	reviews, err := src.Fetch(ctx, from)
	if err != nil {
		observability.ObservePoll(string(p), err)
		return res, fmt.Errorf("fetch %s reviews: %w", p, err)
	}
	res.Fetched = len(reviews)
	observability.ObserveFetched(string(p), len(reviews))

	for i, r := range reviews {
		if r.Updated.Before(from) {
			l.Info().Str("id", r.ID).Time("updated", r.Updated).Msg("last review not within time window")
			break
		}
		if err := ctx.Err(); err != nil {
			l.Warn().Err(err).Int("left", len(reviews)-i).Msg("poll aborted; remaining reviews go to the next run")
			observability.ObservePoll(string(p), err)
			return res, fmt.Errorf("poll %s aborted: %w", p, err)
		}
		res.InWindow++

		switch s.deliver(ctx, l, res.RunID, r) {
		case domain.StatusSent:
			res.Notified++
		case domain.StatusDuplicate:
			res.Duplicates++
		case domain.StatusFailed:
			res.Failed++
		}
	}

	l.Info().
		Int("fetched", res.Fetched).
		Int("in_window", res.InWindow).
		Int("notified", res.Notified).
		Int("duplicates", res.Duplicates).
		Int("failed", res.Failed).
		Msg("poll finished")
	observability.ObservePoll(string(p), nil)
	return res, nil
}

func (s *PollService) deliver(ctx context.Context, l zerolog.Logger, runID string, r domain.Review) domain.DeliveryStatus {
	claimed := false
	if s.ledger != nil {
		first, err := s.ledger.Claim(ctx, r)
		switch {
		case err != nil:
			l.Warn().Err(err).Str("id", r.ID).Msg("ledger claim failed; posting without a claim")
		case !first:
			l.Info().Str("id", r.ID).Msg("review already posted; skipping")
			s.finish(ctx, l, runID, r, domain.StatusDuplicate, nil)
			return domain.StatusDuplicate
		default:
			claimed = true
		}
	}

	l.Info().
		Str("id", r.ID).
		Time("updated", r.Updated).
		Str("author", r.Author).
		Str("title", r.Title).
		Str("version", r.Version).
		Int("rating", r.Rating).
		Msg("review")

	if err := s.notifier.Notify(ctx, r); err != nil {
		l.Error().Err(err).Str("id", r.ID).Msg("notify failed")
		// let the next run pick it up again
		if claimed {
			cctx, cancel := cleanupContext(ctx)
			rerr := s.ledger.Release(cctx, r)
			cancel()
			if rerr != nil {
				l.Warn().Err(rerr).Str("id", r.ID).Msg("ledger release failed")
			}
		}
		s.finish(ctx, l, runID, r, domain.StatusFailed, err)
		return domain.StatusFailed
	}
	s.finish(ctx, l, runID, r, domain.StatusSent, nil)
	return domain.StatusSent
}

func (s *PollService) finish(ctx context.Context, l zerolog.Logger, runID string, r domain.Review, st domain.DeliveryStatus, cause error) {
	observability.ObserveNotified(string(r.Platform), string(st))
	if s.history == nil {
		return
	}
	d := domain.Delivery{
		RunID:      runID,
		Platform:   r.Platform,
		ReviewID:   r.ID,
		Rating:     r.Rating,
		Author:     r.Author,
		ReviewedAt: r.Updated,
		Status:     st,
	}
	if cause != nil {
		msg := cause.Error()
		d.Error = &msg
	}
	cctx, cancel := cleanupContext(ctx)
	defer cancel()
	if err := s.history.RecordDelivery(cctx, d); err != nil {
		l.Warn().Err(err).Str("id", r.ID).Msg("record delivery failed")
	}
}

// cleanupTimeout bounds bookkeeping that must still run after ctx is done.
const cleanupTimeout = 5 * time.Second

// cleanupContext keeps ctx values but not its cancellation, so a claim can be
// released and an attempt recorded after the run was cut short.
func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

// PollAll polls every configured platform with at most workers in flight.
// Results keep run order; failed platforms are joined into the error.
func (s *PollService) PollAll(ctx context.Context, workers int) ([]domain.PollResult, error) {
	if workers <= 0 {
		workers = 1
	}
	platforms := s.Platforms()
	results := make([]domain.PollResult, len(platforms))
	errs := make([]error, len(platforms))

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	for i, p := range platforms {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(platforms); j++ {
				results[j] = domain.PollResult{Platform: platforms[j]}
				errs[j] = fmt.Errorf("poll %s not started: %w", platforms[j], err)
			}
			break
		}
		wg.Add(1)
		go func(i int, p domain.Platform) {
			defer wg.Done()
			defer sem.Release(1)
			results[i], errs[i] = s.Poll(ctx, p)
		}(i, p)
	}
	wg.Wait()
	return results, errors.Join(errs...)
}
