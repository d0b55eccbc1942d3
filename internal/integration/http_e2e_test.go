//go:build integration || !unit

package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"review_notifier/internal/adapters/appstore"
	server "review_notifier/internal/adapters/http_server"
	redisad "review_notifier/internal/adapters/redis"
	slackad "review_notifier/internal/adapters/slack"
	"review_notifier/internal/app"
	"review_notifier/internal/domain"
)

// ---------- fake upstreams ----------

func appleFeed(now time.Time) string {
	entry := func(id string, updated time.Time, title string, rating int) string {
		return fmt.Sprintf(`<entry>
  <author><name>reviewer %s</name></author>
  <updated>%s</updated>
  <im:rating>%d</im:rating>
  <im:version>4.1.0</im:version>
  <id>%s</id>
  <title>%s</title>
  <content type="text">body of %s</content>
</entry>
`, id, updated.Format(time.RFC3339), rating, id, title, id)
	}
	return `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns:im="http://itunes.apple.com/rss" xmlns="http://www.w3.org/2005/Atom">
<entry><id>https://apps.apple.com/za/app/id123</id><title>The App</title></entry>
` + entry("9001", now.Add(-10*time.Minute), "Fresh & good", 5) +
		entry("9000", now.Add(-3*time.Hour), "Old news", 1) +
		"</feed>"
}

type slackSink struct {
	mu    sync.Mutex
	posts []map[string]any
}

func (s *slackSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.posts = append(s.posts, body)
	s.mu.Unlock()
	_, _ = io.WriteString(w, "ok")
}

func (s *slackSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

// ---------- the test ----------

func TestHTTP_EndToEnd_AppleTrigger(t *testing.T) {
	now := time.Now().UTC()

	apple := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/page=1/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, appleFeed(now))
	}))
	defer apple.Close()

	sink := &slackSink{}
	hook := httptest.NewServer(sink)
	defer hook.Close()

	mr := miniredis.RunT(t)

	src, err := appstore.New(apple.URL, "123", "za", 50, 3)
	if err != nil {
		t.Fatalf("appstore.New: %v", err)
	}
	notifier, err := slackad.New(slackad.Options{WebhookURL: hook.URL, Location: time.UTC, RPS: 50})
	if err != nil {
		t.Fatalf("slack.New: %v", err)
	}
	ledger := redisad.New(mr.Addr(), "", 0, 2*time.Hour)
	defer ledger.Close()

	poller := app.NewPollService([]domain.ReviewSource{src}, notifier, ledger, nil, time.Hour)
	srv := server.New(10 * time.Second)
	srv.MountHandlers(&server.Handlers{Poller: poller, SecretKey: "topsecret"})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	// wrong key never reaches the store
	res, err := http.Get(ts.URL + "/http_apple_reviews?key=nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized || sink.count() != 0 {
		t.Fatalf("bad key: status=%d posts=%d", res.StatusCode, sink.count())
	}

	trigger := func() domain.PollResult {
		t.Helper()
		res, err := http.Get(ts.URL + "/http_apple_reviews?key=topsecret")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		defer res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status %d", res.StatusCode)
		}
		var out domain.PollResult
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return out
	}

	first := trigger()
	if first.Fetched != 2 || first.InWindow != 1 || first.Notified != 1 {
		t.Fatalf("first run: %+v", first)
	}
	if sink.count() != 1 {
		t.Fatalf("slack posts = %d, want 1", sink.count())
	}

	sink.mu.Lock()
	post := sink.posts[0]
	sink.mu.Unlock()
	if post["text"] != "apple review: 5/5" {
		t.Fatalf("text = %v", post["text"])
	}
	blocks, _ := post["blocks"].([]any)
	if len(blocks) != 2 {
		t.Fatalf("blocks = %v", post["blocks"])
	}
	section, _ := blocks[0].(map[string]any)
	text, _ := section["text"].(map[string]any)
	if section["block_id"] != "section567" || !strings.HasPrefix(fmt.Sprint(text["text"]), "*Fresh &amp; good*\n★★★★★") {
		t.Fatalf("section = %v", section)
	}

	// an overlapping trigger must not repost
	second := trigger()
	if second.Duplicates != 1 || second.Notified != 0 || sink.count() != 1 {
		t.Fatalf("second run: %+v posts=%d", second, sink.count())
	}
}
