package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/store"
)

type env struct {
	config string
	db     string
	input  string
	output string
}

func setup(t *testing.T) env {
	dir := t.TempDir()
	e := env{
		config: filepath.Join(dir, "powermatch.toml"),
		db:     filepath.Join(dir, "powermatch.db"),
		input:  filepath.Join(dir, "data"),
		output: filepath.Join(dir, "out"),
	}
	require.NoError(t, os.MkdirAll(e.input, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(e.input, "A.csv"),
		[]byte("record_id,name,country,fueltype,capacity_mw\na1,Kraftwerk Boxberg,DE,Lignite,2575\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(e.input, "B.csv"),
		[]byte("record_id,name,country,fueltype,capacity_mw\nb1,Kraftwerk Boxberg,DE,Lignite,2575\n"), 0o644))

	cfg := fmt.Sprintf(`
[run]
input_dir = %q
output_dir = %q
log_level = "error"

[[sources]]
name = "A"
reliability_score = 2

[[sources]]
name = "B"
reliability_score = 1

[cache]
kind = "sqlite"

[store]
sqlite_path = %q
`, e.input, e.output, e.db)
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o644))
	return e
}

func execute(t *testing.T, args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func runs(t *testing.T, db string) []store.Run {
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	out, err := st.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	return out
}

func TestRunCommand(t *testing.T) {
	e := setup(t)

	out, err := execute(t, "run", "--config", e.config)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Plants:        1")

	recorded := runs(t, e.db)
	require.Len(t, recorded, 1)
	assert.Equal(t, store.StatusSucceeded, recorded[0].Status)
	assert.FileExists(t, filepath.Join(e.output, recorded[0].ID, "plants.csv"))

	out, err = execute(t, "cache", "list", "matches", "--config", e.config)
	require.NoError(t, err)
	assert.Contains(t, out, "matches/A_B/")

	out, err = execute(t, "cache", "clear", "--config", e.config)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed")

	out, err = execute(t, "runs", "--config", e.config)
	require.NoError(t, err)
	assert.Contains(t, out, recorded[0].ID)
}

func TestRunCommandFailureIsRecorded(t *testing.T) {
	e := setup(t)

	// The command returns the error instead of exiting, after the run is recorded and the store closed.
	_, err := execute(t, "run", "--cached-only", "--config", e.config)
	assert.ErrorIs(t, err, model.ErrCacheMiss)

	recorded := runs(t, e.db)
	require.Len(t, recorded, 1)
	assert.Equal(t, store.StatusFailed, recorded[0].Status)
	assert.Contains(t, recorded[0].Error, "cache miss")
}

func TestRunCommandMissingInput(t *testing.T) {
	e := setup(t)
	require.NoError(t, os.Remove(filepath.Join(e.input, "B.csv")))

	_, err := execute(t, "run", "--config", e.config)
	assert.Error(t, err)
	assert.Empty(t, runs(t, e.db))
}
