package slackad

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"review_notifier/internal/domain"
)

const (
	sectionBlockID = "section567"
	dateLayout     = "2006-01-02 15:04:05-07:00"
	maxStars       = 5
)

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func Stars(rating int) string {
	return strings.Repeat("★", rating) + strings.Repeat("☆", maxStars-rating)
}

// PlayConsoleURL links straight to the review in the Play Console.
func PlayConsoleURL(developerID, applicationID, reviewID string) string {
	return fmt.Sprintf("https://play.google.com/console/u/0/developers/%s/app/%s/user-feedback/review-details?reviewId=%s&corpus=PUBLIC_REVIEWS",
		developerID, applicationID, url.QueryEscape(reviewID))
}

// BuildMessage renders a review as a section with the review itself and a
// context line with its local time, platform and optional link.
func BuildMessage(r domain.Review, loc *time.Location, link string) (*slack.WebhookMessage, error) {
	if r.Rating < 0 || r.Rating > maxStars {
		return nil, fmt.Errorf("rating %d out of range 0..%d", r.Rating, maxStars)
	}
	if loc == nil {
		loc = time.UTC
	}

	body := fmt.Sprintf("*%s*\n%s\n%s\n\n_%s_ *(%s)*",
		mrkdwnEscaper.Replace(r.Title),
		Stars(r.Rating),
		mrkdwnEscaper.Replace(r.Summary),
		mrkdwnEscaper.Replace(r.Author),
		mrkdwnEscaper.Replace(r.Version),
	)
	date := fmt.Sprintf("%s - %s", r.Updated.In(loc).Format(dateLayout), r.Platform)
	if link != "" {
		date += fmt.Sprintf(" <%s|:link:>", link)
	}

	section := slack.NewSectionBlock(
		slack.NewTextBlockObject(slack.MarkdownType, body, false, false),
		nil, nil,
		slack.SectionBlockOptionBlockID(sectionBlockID),
	)
	footer := slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, date, false, false),
	)

	return &slack.WebhookMessage{
		Text:   fmt.Sprintf("%s review: %d/5", r.Platform, r.Rating),
		Blocks: &slack.Blocks{BlockSet: []slack.Block{section, footer}},
	}, nil
}

// fallbackMessage is posted when a review cannot be rendered, so it is never lost.
func fallbackMessage(r domain.Review) *slack.WebhookMessage {
	return &slack.WebhookMessage{Text: fmt.Sprintf("%s; %+v", r.Platform, r)}
}
