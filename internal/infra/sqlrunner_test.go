package infra

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestExtractMarker(t *testing.T) {
	query := "--sql 4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db\nselect 1;\n"
	marker, body, err := extractMarker(query)
	if err != nil {
		t.Fatalf("extractMarker error: %v", err)
	}
	if marker != "4f55a9b7-4e9f-4e45-a3b3-5a532d21d9db" {
		t.Fatalf("marker = %q", marker)
	}
	if body != "select 1;" {
		t.Fatalf("body = %q", body)
	}
}

func TestExtractMarkerRejectsUntaggedQuery(t *testing.T) {
	if _, _, err := extractMarker("select 1;"); err == nil {
		t.Fatalf("expected error for query without marker")
	}
	if _, _, err := extractMarker("--sql not-a-uuid\nselect 1;"); err == nil {
		t.Fatalf("expected error for malformed marker")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(pgx.ErrNoRows) {
		t.Fatalf("expected pgx.ErrNoRows to match")
	}
	if !IsNoRows(fmt.Errorf("wrapped: %w", pgx.ErrNoRows)) {
		t.Fatalf("expected wrapped ErrNoRows to match")
	}
	if IsNoRows(errors.New("boom")) {
		t.Fatalf("unexpected match for unrelated error")
	}
}

func TestObserveLevels(t *testing.T) {
	var buf bytes.Buffer
	r := &SQLRunner{Logger: zerolog.New(&buf).Level(zerolog.DebugLevel), SlowQuery: time.Hour}

	r.observe("m1", "exec", time.Now(), nil).Send()
	r.observe("m2", "query_row", time.Now(), pgx.ErrNoRows).Send()
	r.observe("m3", "exec", time.Now(), errors.New("boom")).Send()
	r.SlowQuery = time.Nanosecond
	r.observe("m4", "query", time.Now().Add(-time.Second), nil).Send()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	want := []string{"debug", "debug", "error", "warn"}
	for i, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		require.Equal(t, want[i], entry["level"], line)
		require.Equal(t, fmt.Sprintf("m%d", i+1), entry["sql"])
		require.NotContains(t, line, "select")
	}
}

func TestNewConfiguredSQLRunner(t *testing.T) {
	r := NewConfiguredSQLRunner(nil, zerolog.Nop(), &Config{DBSlowQuery: 2 * time.Second})
	require.Equal(t, 2*time.Second, r.SlowQuery)
	r = NewConfiguredSQLRunner(nil, zerolog.Nop(), nil)
	require.Equal(t, defaultSlowQuery, r.SlowQuery)
}
