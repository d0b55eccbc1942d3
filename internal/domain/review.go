package domain

import "time"

type Platform string

const (
	Apple   Platform = "apple"
	Android Platform = "android"
)

// Platforms lists every platform in the order the poller runs them.
var Platforms = []Platform{Apple, Android}

func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(s); p {
	case Apple, Android:
		return p, nil
	}
	return "", ErrUnknownPlatform
}

// Review is one store review as returned by a source. It lives for a single run.
type Review struct {
	ID       string
	Platform Platform
	Updated  time.Time
	Author   string
	Title    string
	Summary  string
	Version  string
	Rating   int // 1..5
}

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusFailed    DeliveryStatus = "failed"
	StatusDuplicate DeliveryStatus = "duplicate"
)

type Delivery struct {
	ID         int64          `json:"id"`
	RunID      string         `json:"run_id"`
	Platform   Platform       `json:"platform"`
	ReviewID   string         `json:"review_id"`
	Rating     int            `json:"rating"`
	Author     string         `json:"author"`
	ReviewedAt time.Time      `json:"reviewed_at"`
	Status     DeliveryStatus `json:"status"`
	Error      *string        `json:"error,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// PollResult summarises one fetch-filter-notify run.
type PollResult struct {
	RunID      string   `json:"run_id"`
	Platform   Platform `json:"platform"`
	Fetched    int      `json:"fetched"`
	InWindow   int      `json:"in_window"`
	Notified   int      `json:"notified"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
}
