package oracle

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/powermatch/internal/config"
	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/logging"
)

// Files exchanged with the external matcher.
const (
	FileA     = "file_A.csv"
	FileB     = "file_B.csv"
	FileInput = "input.csv"
	FileLinks = "linkfile.txt"

	ModeEnv = "POWERMATCH_MODE"
)

var processColumns = []string{"id", "name", "fueltype", "technology", "country", "capacity", "lat", "lon"}

// ProcessOracle delegates matching to an external record-linkage program. Each call gets a fresh
// working directory holding the partition as CSV; the program writes comma separated
// "<kind>,<id1>,<id2>,<score>" lines to linkfile.txt. The score column is optional in dedup mode.
type ProcessOracle struct {
	Command   string
	Args      []string
	WorkDir   string
	Threshold float64
	logger    *zap.Logger
}

var _ SimilarityOracle = (*ProcessOracle)(nil)

func NewProcessOracle(cfg config.ProcessConfig, threshold float64, logger *zap.Logger) *ProcessOracle {
	return &ProcessOracle{
		Command:   cfg.Command,
		Args:      cfg.Args,
		WorkDir:   cfg.WorkDir,
		Threshold: threshold,
		logger:    logging.OrNop(logger).Named("process-oracle"),
	}
}

func (o *ProcessOracle) Link(ctx context.Context, p LinkPartition) ([]model.MatchLink, error) {
	dir, err := os.MkdirTemp(o.WorkDir, "link-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := writeRecords(filepath.Join(dir, FileA), p.A); err != nil {
		return nil, err
	}
	if err := writeRecords(filepath.Join(dir, FileB), p.B); err != nil {
		return nil, err
	}
	rows, err := o.run(ctx, dir, "link")
	if err != nil {
		return nil, fmt.Errorf("failed to link %s: %w", p.Label(), err)
	}

	knownA, knownB := ids(p.A), ids(p.B)
	var out []model.MatchLink
	for _, r := range rows {
		if !knownA[r.first] || !knownB[r.second] {
			continue
		}
		if r.score < o.Threshold {
			continue
		}
		out = append(out, model.MatchLink{
			SourceA: p.SourceA, RecordA: r.first,
			SourceB: p.SourceB, RecordB: r.second,
			Score: r.score,
		})
	}
	return out, nil
}

// Duplicates treats every reported pair as a mutual judgment.
func (o *ProcessOracle) Duplicates(ctx context.Context, p DedupPartition) ([]model.MatchLink, error) {
	dir, err := os.MkdirTemp(o.WorkDir, "dedup-")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := writeRecords(filepath.Join(dir, FileInput), p.Records); err != nil {
		return nil, err
	}
	rows, err := o.run(ctx, dir, "dedup")
	if err != nil {
		return nil, fmt.Errorf("failed to deduplicate %s/%s: %w", p.Source, p.Country, err)
	}

	known := ids(p.Records)
	var out []model.MatchLink
	for _, r := range rows {
		if !known[r.first] || !known[r.second] || r.first == r.second {
			continue
		}
		if r.score < o.Threshold {
			continue
		}
		out = append(out,
			model.MatchLink{SourceA: p.Source, RecordA: r.first, SourceB: p.Source, RecordB: r.second, Score: r.score},
			model.MatchLink{SourceA: p.Source, RecordA: r.second, SourceB: p.Source, RecordB: r.first, Score: r.score},
		)
	}
	return out, nil
}

type linkRow struct {
	first, second string
	score         float64
}

func (o *ProcessOracle) run(ctx context.Context, dir, mode string) ([]linkRow, error) {
	if o.Command == "" {
		return nil, errors.New("no matcher command configured")
	}
	cmd := exec.CommandContext(ctx, o.Command, o.Args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), ModeEnv+"="+mode)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	o.logger.Debug("running matcher", zap.String("dir", dir), zap.String("mode", mode))
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("matcher failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if msg := stderr.String(); strings.Contains(strings.ToLower(msg), "error") {
		return nil, fmt.Errorf("matcher reported an error: %s", strings.TrimSpace(msg))
	}

	f, err := os.Open(filepath.Join(dir, FileLinks))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open link file: %w", err)
	}
	defer f.Close()
	return readLinkFile(f, mode == "dedup")
}

func readLinkFile(r io.Reader, scoreOptional bool) ([]linkRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []linkRow
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read link file: %w", err)
		}
		if len(fields) < 3 {
			continue
		}
		row := linkRow{first: strings.TrimSpace(fields[1]), second: strings.TrimSpace(fields[2]), score: 1}
		if len(fields) >= 4 && strings.TrimSpace(fields[3]) != "" {
			s, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid score %q: %w", fields[3], err)
			}
			row.score = s
		} else if !scoreOptional {
			return nil, fmt.Errorf("missing score for %s,%s", row.first, row.second)
		}
		out = append(out, row)
	}
	return out, nil
}

func writeRecords(path string, records []model.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	w := csv.NewWriter(f)
	_ = w.Write(processColumns)
	for _, r := range records {
		lat, lon := "", ""
		if r.HasCoords() {
			lat = strconv.FormatFloat(*r.Lat, 'f', -1, 64)
			lon = strconv.FormatFloat(*r.Lon, 'f', -1, 64)
		}
		_ = w.Write([]string{
			r.RecordID, r.Name, r.Fueltype, r.Technology, r.Country,
			strconv.FormatFloat(r.CapacityMW, 'f', -1, 64), lat, lon,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
