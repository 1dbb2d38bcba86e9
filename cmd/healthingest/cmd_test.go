package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ladvien/self-sensored-sub003/internal/domain/health"
	"github.com/Ladvien/self-sensored-sub003/internal/modules/ingest"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "healthingest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestPlanPrintsEveryType(t *testing.T) {
	out, err := run(t, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "safe parameter limit: 52428")
	for _, typ := range health.AllTypes {
		assert.Contains(t, out, string(typ))
	}
}

func TestPlanJSONShowsOverride(t *testing.T) {
	path := writeConfig(t, `
batch:
  chunk_overrides:
    heart_rate: 1000
`)
	out, err := run(t, "plan", "--config", path, "--json")
	require.NoError(t, err)

	var rows []ingest.PlanRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, len(health.AllTypes))
	for _, row := range rows {
		if row.Type == health.HeartRate {
			assert.True(t, row.Overridden)
			assert.Equal(t, 1000, row.ChunkSize)
		} else {
			assert.False(t, row.Overridden, row.Type)
		}
	}
}

func TestPlanRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, `
postgres:
  max_open_conns: 5
batch:
  max_concurrent_chunks: 10
`)
	_, err := run(t, "plan", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be below postgres.max_open_conns")
}

func TestSubmitRequiresFlags(t *testing.T) {
	_, err := run(t, "submit")
	require.Error(t, err)
}
