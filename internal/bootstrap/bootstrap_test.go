package bootstrap

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"

	"review_notifier/internal/domain"
	"review_notifier/internal/shared"
)

func testConfig(t *testing.T) shared.Config {
	c := shared.Defaults()
	c.AndroidPackage = "com.example.app"
	c.AppleAppID = "123"
	c.SlackWebhook = "http://127.0.0.1:1/hook"
	c.SecretKey = "k"
	c.Location = time.UTC
	c.RunFrequency = time.Hour
	c.LedgerTTL = 2 * time.Hour
	c.CredentialFile = filepath.Join(t.TempDir(), "missing.json")
	return c
}

func TestBuild_AppleOnlyWithoutCredentials(t *testing.T) {
	d, err := Build(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer d.Close()

	if diff := cmp.Diff([]domain.Platform{domain.Apple}, d.Poller.Platforms()); diff != "" {
		t.Fatalf("platforms mismatch (-want +got):\n%s", diff)
	}
	if d.Deliveries != nil {
		t.Fatalf("delivery service must be off without MYSQL_DSN")
	}
}

func TestBuild_RedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisAddr = mr.Addr()

	d, err := Build(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	mr.Close()
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("expected ping failure once redis is gone")
	}
}

func TestBuild_UnreachableMySQL(t *testing.T) {
	cfg := testConfig(t)
	cfg.MySQLDSN = "user:pass@tcp(127.0.0.1:1)/reviews"

	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("expected db ping error")
	}
}
