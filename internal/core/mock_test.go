package core

import (
	"context"
	"strings"
	"sync"

	"github.com/agenthands/powermatch/internal/core/model"
	"github.com/agenthands/powermatch/internal/oracle"
)

// MockOracle judges records with equal names (case insensitive) as the same unit.
type MockOracle struct {
	mu         sync.Mutex
	LinkCalls  int
	DedupCalls int
	Err        error
}

func (m *MockOracle) Duplicates(ctx context.Context, p oracle.DedupPartition) ([]model.MatchLink, error) {
	m.mu.Lock()
	m.DedupCalls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []model.MatchLink
	for i, a := range p.Records {
		for j, b := range p.Records {
			if i != j && strings.EqualFold(a.Name, b.Name) {
				out = append(out, model.MatchLink{SourceA: p.Source, RecordA: a.RecordID, SourceB: p.Source, RecordB: b.RecordID, Score: 1})
			}
		}
	}
	return out, nil
}

func (m *MockOracle) Link(ctx context.Context, p oracle.LinkPartition) ([]model.MatchLink, error) {
	m.mu.Lock()
	m.LinkCalls++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []model.MatchLink
	for _, a := range p.A {
		for _, b := range p.B {
			if strings.EqualFold(a.Name, b.Name) {
				out = append(out, model.MatchLink{SourceA: p.SourceA, RecordA: a.RecordID, SourceB: p.SourceB, RecordB: b.RecordID, Score: 0.9})
			}
		}
	}
	return out, nil
}
