package appstore

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"review_notifier/internal/adapters/observability"
	"review_notifier/internal/domain"
	"review_notifier/internal/shared"
)

// Apple serves at most 10 pages of customer reviews.
const maxFeedPages = 10

// Client reads the App Store customer-review feed of one app.
type Client struct {
	base     string
	appID    string
	country  string
	hc       *http.Client
	rl       *rate.Limiter
	maxPages int
}

func New(base, appID, country string, rps, maxPages int) (*Client, error) {
	if appID == "" {
		return nil, fmt.Errorf("apple app id is required")
	}
	if rps <= 0 {
		rps = 5
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	if maxPages > maxFeedPages {
		maxPages = maxFeedPages
	}
	if country == "" {
		country = "za"
	}
	return &Client{
		base:     strings.TrimRight(base, "/"),
		appID:    appID,
		country:  strings.ToLower(country),
		hc:       &http.Client{Timeout: 20 * time.Second},
		rl:       rate.NewLimiter(rate.Limit(rps), rps),
		maxPages: maxPages,
	}, nil
}

func (c *Client) Platform() domain.Platform { return domain.Apple }

// Fetch walks the most-recent-first feed until a page ends before since.
func (c *Client) Fetch(ctx context.Context, since time.Time) ([]domain.Review, error) {
	var out []domain.Review
	for page := 1; page <= c.maxPages; page++ {
		var f feed
		if err := c.get(ctx, c.pageURL(page), &f); err != nil {
			// past the last page Apple answers 404 rather than an empty feed
			if page > 1 && errors.Is(err, domain.ErrNotFound) {
				break
			}
			return nil, fmt.Errorf("appstore page %d: %w", page, err)
		}
		revs := mapEntries(f.Entries)
		if len(revs) == 0 {
			if page == 1 {
				log.Warn().Str("app_id", c.appID).Str("country", c.country).
					Msg("no reviews in feed; got the right app id and country?")
			}
			break
		}
		out = append(out, revs...)
		if revs[len(revs)-1].Updated.Before(since) {
			break
		}
	}
	return out, nil
}

func (c *Client) pageURL(page int) string {
	return fmt.Sprintf("%s/%s/rss/customerreviews/page=%d/id=%s/sortby=mostrecent/xml",
		c.base, c.country, page, c.appID)
}

// ---- feed schema ----

type feed struct {
	Entries []entry `xml:"entry"`
}

type entry struct {
	ID      string    `xml:"id"`
	Updated string    `xml:"updated"`
	Title   string    `xml:"title"`
	Author  author    `xml:"author"`
	Content []content `xml:"content"`
	Rating  string    `xml:"http://itunes.apple.com/rss rating"`
	Version string    `xml:"http://itunes.apple.com/rss version"`
}

type author struct {
	Name string `xml:"name"`
}

type content struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

func mapEntries(in []entry) []domain.Review {
	out := make([]domain.Review, 0, len(in))
	for _, e := range in {
		// the app's own metadata entry carries no rating
		if strings.TrimSpace(e.Rating) == "" {
			continue
		}
		r, err := mapEntry(e)
		if err != nil {
			log.Error().Err(err).Str("id", e.ID).Msg("skipping unreadable feed entry")
			continue
		}
		out = append(out, r)
	}
	return out
}

func mapEntry(e entry) (domain.Review, error) {
	updated, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Updated))
	if err != nil {
		return domain.Review{}, fmt.Errorf("updated: %w", err)
	}
	rating, err := strconv.Atoi(strings.TrimSpace(e.Rating))
	if err != nil {
		return domain.Review{}, fmt.Errorf("rating: %w", err)
	}
	return domain.Review{
		ID:       lastSegment(strings.TrimSpace(e.ID)),
		Platform: domain.Apple,
		Updated:  updated,
		Author:   strings.TrimSpace(e.Author.Name),
		Title:    strings.TrimSpace(e.Title),
		Summary:  strings.TrimSpace(summary(e.Content)),
		Version:  strings.TrimSpace(e.Version),
		Rating:   rating,
	}, nil
}

// summary prefers the plain-text body; the html variant is a fallback.
func summary(cs []content) string {
	for _, c := range cs {
		if c.Type == "text" {
			return c.Body
		}
	}
	if len(cs) > 0 {
		return cs[0].Body
	}
	return ""
}

func lastSegment(id string) string {
	if i := strings.LastIndexByte(id, '/'); i >= 0 {
		return id[i+1:]
	}
	return id
}

// ---- transport ----

// get performs a GET with client-side rate limiting and retries, decoding the XML body into out.
// Retries on network errors, 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) get(ctx context.Context, url string, out any) error {
	var lastErr error
	for i := 0; i < shared.MaxAttempts; i++ {
		// every attempt counts against the limit, retries included
		if err := c.rl.Wait(ctx); err != nil {
			return err
		}
		last := i == shared.MaxAttempts-1
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/atom+xml, application/xml")
		req.Header.Set("User-Agent", "review-notifier/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("appstore", "customerreviews", 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if !last && shared.SleepCtx(ctx, shared.Backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal("appstore", "customerreviews", resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode == http.StatusOK:
			err := xml.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("bad data in feed: %w", err)
			}
			return nil

		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return domain.ErrNotFound

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			return domain.ErrUnauthorized

		case shared.Retryable(resp.StatusCode):
			wait := shared.RetryAfter(resp.Header)
			resp.Body.Close()
			if wait == 0 {
				wait = shared.Backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if !last && shared.SleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("bad status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}
	return lastErr
}
