package playstore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"review_notifier/internal/adapters/observability"
	"review_notifier/internal/domain"
	"review_notifier/internal/shared"
)

const notAvailable = "N/A"

// Client lists Google Play reviews of one package through the Developer API.
type Client struct {
	svc      *androidpublisher.Service
	pkg      string
	maxPages int
}

func New(ctx context.Context, pkg string, maxPages int, opts ...option.ClientOption) (*Client, error) {
	if pkg == "" {
		return nil, fmt.Errorf("android package name is required")
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	svc, err := androidpublisher.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("androidpublisher service: %w", err)
	}
	return &Client{svc: svc, pkg: pkg, maxPages: maxPages}, nil
}

// NewFromCredentialsFile authenticates with a service-account JSON key.
func NewFromCredentialsFile(ctx context.Context, pkg, file string, maxPages int) (*Client, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, b, androidpublisher.AndroidpublisherScope)
	if err != nil {
		return nil, fmt.Errorf("parse credential file %s: %w", file, err)
	}
	base := &http.Client{Transport: &observability.Transport{Service: "playstore"}}
	hc := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, base), creds.TokenSource)
	hc.Timeout = 30 * time.Second
	return New(ctx, pkg, maxPages, option.WithHTTPClient(hc))
}

func (c *Client) Platform() domain.Platform { return domain.Android }

// Fetch follows page tokens until a page ends before since or maxPages is reached.
func (c *Client) Fetch(ctx context.Context, since time.Time) ([]domain.Review, error) {
	var out []domain.Review
	token := ""
	for page := 0; page < c.maxPages; page++ {
		resp, err := c.list(ctx, token)
		if err != nil {
			return nil, err
		}
		revs := mapReviews(resp.Reviews)
		out = append(out, revs...)

		if resp.TokenPagination == nil || resp.TokenPagination.NextPageToken == "" {
			break
		}
		if len(revs) == 0 || revs[len(revs)-1].Updated.Before(since) {
			break
		}
		token = resp.TokenPagination.NextPageToken
	}
	return out, nil
}

// list retries 429 and transient 5xx; the generated client does not retry GETs.
func (c *Client) list(ctx context.Context, token string) (*androidpublisher.ReviewsListResponse, error) {
	var lastErr error
	for i := 0; i < shared.MaxAttempts; i++ {
		call := c.svc.Reviews.List(c.pkg).Context(ctx)
		if token != "" {
			call = call.Token(token)
		}
		resp, err := call.Do()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var gerr *googleapi.Error
		if !errors.As(err, &gerr) || !shared.Retryable(gerr.Code) {
			return nil, c.mapErr(err)
		}
		wait := shared.RetryAfter(gerr.Header)
		if wait == 0 {
			wait = shared.Backoff(i)
		}
		if i == shared.MaxAttempts-1 || !shared.SleepCtx(ctx, wait) {
			break
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, c.mapErr(lastErr)
}

func (c *Client) mapErr(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("playstore %s: %w", c.pkg, domain.ErrNotFound)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("playstore %s: %w: %s", c.pkg, domain.ErrUnauthorized, gerr.Message)
		}
	}
	return fmt.Errorf("playstore list reviews: %w", err)
}

func mapReviews(in []*androidpublisher.Review) []domain.Review {
	out := make([]domain.Review, 0, len(in))
	for _, r := range in {
		rv, ok := mapReview(r)
		if !ok {
			continue
		}
		out = append(out, rv)
	}
	return out
}

// mapReview reads the first comment, which is always the user's.
func mapReview(r *androidpublisher.Review) (domain.Review, bool) {
	if r == nil {
		return domain.Review{}, false
	}
	if len(r.Comments) == 0 || r.Comments[0].UserComment == nil {
		log.Warn().Str("id", r.ReviewId).Msg("review has no user comment; skipping")
		return domain.Review{}, false
	}
	uc := r.Comments[0].UserComment
	if uc.LastModified == nil {
		log.Warn().Str("id", r.ReviewId).Msg("review has no lastModified; skipping")
		return domain.Review{}, false
	}

	manufacturer := notAvailable
	if uc.DeviceMetadata != nil && uc.DeviceMetadata.Manufacturer != "" {
		manufacturer = uc.DeviceMetadata.Manufacturer
	}
	osVersion := notAvailable
	if uc.AndroidOsVersion != 0 {
		osVersion = strconv.FormatInt(uc.AndroidOsVersion, 10)
	}
	version := uc.AppVersionName
	if version == "" {
		version = notAvailable
	}

	return domain.Review{
		ID:       r.ReviewId,
		Platform: domain.Android,
		Updated:  time.Unix(uc.LastModified.Seconds, uc.LastModified.Nanos),
		Author:   strings.TrimSpace(r.AuthorName),
		Title:    fmt.Sprintf("%s (Android: %s)", manufacturer, osVersion),
		Summary:  strings.TrimSpace(uc.Text),
		Version:  version,
		Rating:   int(uc.StarRating),
	}, true
}
