//go:build integration

package mysql_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"review_notifier/internal/domain"
	mysqlrepo "review_notifier/internal/storage/mysql"
)

func pstr(s string) *string { return &s }

func migrationsDir() string {
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		return v
	}
	return filepath.Join("..", "..", "..", "migrations")
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := migrationsDir()

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir %s: %v", dir, err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

// startMySQL runs an isolated MySQL; Docker picks a free host port.
func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=reviews",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/reviews?parseTime=true&multiStatements=true&charset=utf8mb4&loc=UTC", hostPort)

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

func TestRepo_MySQL_RecordAndList(t *testing.T) {
	repo := mysqlrepo.New(startMySQL(t))
	ctx := context.Background()
	reviewed := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	deliveries := []domain.Delivery{
		{RunID: "11111111-1111-1111-1111-111111111111", Platform: domain.Apple, ReviewID: "a1",
			Rating: 5, Author: "Ana", ReviewedAt: reviewed, Status: domain.StatusSent},
		{RunID: "11111111-1111-1111-1111-111111111111", Platform: domain.Android, ReviewID: "g1",
			Rating: 2, Author: "Bob", ReviewedAt: reviewed, Status: domain.StatusFailed, Error: pstr("slack 500")},
		{RunID: "22222222-2222-2222-2222-222222222222", Platform: domain.Apple, ReviewID: "a2",
			Rating: 4, Author: "Cy", ReviewedAt: reviewed.Add(time.Minute), Status: domain.StatusSent},
	}
	for _, d := range deliveries {
		if err := repo.RecordDelivery(ctx, d); err != nil {
			t.Fatalf("RecordDelivery: %v", err)
		}
		// created_at has microsecond precision; keep ordering deterministic
		time.Sleep(5 * time.Millisecond)
	}

	apple := domain.Apple
	got, err := repo.ListDeliveries(ctx, domain.DeliveryQuery{Platform: &apple, Limit: 10})
	if err != nil {
		t.Fatalf("ListDeliveries: %v", err)
	}
	if len(got) != 2 || got[0].ReviewID != "a2" || got[1].ReviewID != "a1" {
		t.Fatalf("unexpected apple deliveries: %+v", got)
	}
	if !got[1].ReviewedAt.Equal(reviewed) {
		t.Fatalf("reviewed_at round trip: %v", got[1].ReviewedAt)
	}

	all, err := repo.ListDeliveries(ctx, domain.DeliveryQuery{Limit: 2})
	if err != nil {
		t.Fatalf("ListDeliveries all: %v", err)
	}
	if len(all) != 2 || all[1].Error == nil || *all[1].Error != "slack 500" {
		t.Fatalf("unexpected deliveries: %+v", all)
	}
}
