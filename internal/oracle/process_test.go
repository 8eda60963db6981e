package oracle

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/powermatch/internal/config"
	"github.com/agenthands/powermatch/internal/core/model"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "matcher.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestProcessLink(t *testing.T) {
	script := writeScript(t, `test "$POWERMATCH_MODE" = link || exit 3
test -f file_A.csv || exit 4
test -f file_B.csv || exit 5
printf '0,a1,b1,0.97\n0,a2,b1,0.2\n0,a1,zz,0.99\n' > linkfile.txt
`)
	o := NewProcessOracle(config.ProcessConfig{Command: script}, 0.5, nil)
	links, err := o.Link(context.Background(), LinkPartition{
		SourceA: "A", SourceB: "B", Country: "ES",
		A: []model.Record{{RecordID: "a1"}, {RecordID: "a2"}},
		B: []model.Record{{RecordID: "b1"}},
	})

	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, model.MatchLink{SourceA: "A", RecordA: "a1", SourceB: "B", RecordB: "b1", Score: 0.97}, links[0])
}

func TestProcessDuplicatesDefaultScore(t *testing.T) {
	script := writeScript(t, `test "$POWERMATCH_MODE" = dedup || exit 3
printf '0,r1,r2\n' > linkfile.txt
`)
	o := NewProcessOracle(config.ProcessConfig{Command: script}, 0.9, nil)
	links, err := o.Duplicates(context.Background(), DedupPartition{
		Source: "S", Records: []model.Record{{RecordID: "r1"}, {RecordID: "r2"}},
	})

	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, 1.0, links[0].Score)
	assert.Equal(t, "r2", links[1].RecordA)
}

func TestProcessFailure(t *testing.T) {
	script := writeScript(t, `echo "ERROR: bad config" >&2
`)
	o := NewProcessOracle(config.ProcessConfig{Command: script}, 0.5, nil)
	_, err := o.Link(context.Background(), LinkPartition{A: []model.Record{{RecordID: "a"}}, B: []model.Record{{RecordID: "b"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad config")

	script = writeScript(t, "exit 2\n")
	o = NewProcessOracle(config.ProcessConfig{Command: script}, 0.5, nil)
	_, err = o.Link(context.Background(), LinkPartition{A: []model.Record{{RecordID: "a"}}, B: []model.Record{{RecordID: "b"}}})
	assert.Error(t, err)
}

func TestReadLinkFile(t *testing.T) {
	rows, err := readLinkFile(strings.NewReader("0, x, y, 0.5\n\n0,u,v\n"), true)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, linkRow{first: "x", second: "y", score: 0.5}, rows[0])
	assert.Equal(t, 1.0, rows[1].score)

	_, err = readLinkFile(strings.NewReader("0,u,v\n"), false)
	assert.Error(t, err)
}
