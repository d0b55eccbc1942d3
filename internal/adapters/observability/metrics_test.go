package observability_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"review_notifier/internal/adapters/observability"
)

func scrape(t *testing.T) string {
	t.Helper()
	mh := observability.MetricsHandler(observability.InitRegistry())
	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	mh.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	return string(body)
}

func TestMetricsRegistryAndHandler(t *testing.T) {
	observability.ObserveHTTP("/test", "GET", 200, 12*time.Millisecond)
	observability.ObserveFetched("apple", 3)
	observability.ObserveNotified("apple", "sent")
	observability.ObservePoll("android", errors.New("boom"))

	out := scrape(t)
	for _, want := range []string{
		"review_notifier_http_requests_total",
		`review_notifier_reviews_fetched_total{platform="apple"}`,
		`review_notifier_reviews_notified_total{outcome="sent",platform="apple"}`,
		`review_notifier_poll_runs_total{platform="android",status="error"}`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output", want)
		}
	}
}

func TestTransportObservesCalls(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer ts.Close()

	hc := &http.Client{Transport: &observability.Transport{Service: "probe"}}
	resp, err := hc.Get(ts.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	if out := scrape(t); !strings.Contains(out, `service="probe",status="418"`) {
		t.Fatalf("expected probe request in metrics")
	}
}
