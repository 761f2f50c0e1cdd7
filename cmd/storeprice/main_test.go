package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storeprice/models"
	"storeprice/reader"
)

const testRows = `[
  ["Gem Pack (SR)", "Shop", 4.99],
  ["Gem Pack (SR)", "Event", 3.99],
  ["1h Speed-Up", "Black Market", 0.2667],
  ["1h Speed-Up", "Bounty Hunter", 0.1667],
  ["Hero Shard", "Shop", 1.5],
  ["Iron Ore", "Shop", 0.02]
]`

func writeRows(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.json")
	if err := os.WriteFile(path, []byte(testRows), 0o644); err != nil {
		t.Fatalf("write rows: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	return newApp().Run(append([]string{"storeprice", "--log-level", "error"}, args...))
}

func TestListCommand(t *testing.T) {
	rows := writeRows(t)
	if err := run(t, "--rows", rows, "list", "--search", "speed", "--currency", "EUR"); err != nil {
		t.Fatalf("list: %v", err)
	}
}

func TestListCommandNoFiles(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "*.json")
	err := run(t, "--rows", missing, "list")
	if err == nil || !strings.Contains(err.Error(), "no row files") {
		t.Fatalf("expected no row files error, got %v", err)
	}
}

func TestCompareCommandIgnoresExtraItems(t *testing.T) {
	rows := writeRows(t)
	err := run(t, "--rows", rows, "compare",
		"--id", "gem-pack-sr", "--id", "1h-speed-up", "--id", "hero-shard", "--id", "iron-ore")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
}

func TestCommandsInArabic(t *testing.T) {
	rows := writeRows(t)
	if err := run(t, "--rows", rows, "--lang", "ar", "list", "--category", "speedups"); err != nil {
		t.Fatalf("list: %v", err)
	}
	err := run(t, "--rows", rows, "--lang", "ar", "compare",
		"--id", "gem-pack-sr", "--id", "1h-speed-up", "--id", "hero-shard", "--id", "iron-ore")
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
}

func TestCompareCommandUnknownItem(t *testing.T) {
	rows := writeRows(t)
	if err := run(t, "--rows", rows, "compare", "--id", "nope"); err == nil {
		t.Fatal("expected error for unknown item")
	}
}

func TestConvertCommand(t *testing.T) {
	if err := run(t, "convert", "--amount", "12.5", "--currency", "EUR", "--currency", "JPY"); err != nil {
		t.Fatalf("convert: %v", err)
	}
	if err := run(t, "convert", "--amount", "1", "--currency", "XXX"); err == nil {
		t.Fatal("expected error for unknown currency")
	}
}

func TestRowsConvertWritesParquet(t *testing.T) {
	rows := writeRows(t)
	out := filepath.Join(t.TempDir(), "out", "rows.parquet")

	if err := run(t, "--rows", rows, "rows", "convert", "--out", out, "--compression", "gzip"); err != nil {
		t.Fatalf("rows convert: %v", err)
	}

	decoded, err := reader.LoadFile(out)
	if err != nil {
		t.Fatalf("load parquet: %v", err)
	}
	if len(decoded) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(decoded))
	}
}

func TestRowsPushRequiresTarget(t *testing.T) {
	rows := writeRows(t)
	if err := run(t, "--rows", rows, "rows", "push"); err == nil {
		t.Fatal("expected error without --bucket or --dashboard")
	}
}

func TestPushDashboard(t *testing.T) {
	var got []any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rows" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"offered": len(got), "admitted": len(got), "rows": len(got)})
	}))
	defer srv.Close()

	rows := []models.RawRow{[]any{"Hero Shard", "Shop", 1.5}}
	if err := pushDashboard(context.Background(), srv.URL+"/", rows); err != nil {
		t.Fatalf("pushDashboard: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 pushed row, got %d", len(got))
	}
}

func TestPushDashboardError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"row push rate limit exceeded"}`))
	}))
	defer srv.Close()

	err := pushDashboard(context.Background(), srv.URL, []models.RawRow{[]any{"a", "b", 1.0}})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}
