package oracle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agenthands/powermatch/internal/config"
	"github.com/agenthands/powermatch/internal/llm"
)

// New builds the configured oracle wrapped with the matching limits.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (SimilarityOracle, error) {
	var inner SimilarityOracle
	switch cfg.Oracle.Kind {
	case config.OracleRule, "":
		inner = NewRuleOracle(cfg.Oracle.Threshold)
	case config.OracleLLM:
		client, err := llm.NewClient(ctx, cfg.Oracle.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to create llm client: %w", err)
		}
		inner = NewLLMOracle(client, cfg.Oracle.Threshold, cfg.Oracle.LLM.BatchSize, logger)
	case config.OracleProcess:
		inner = NewProcessOracle(cfg.Oracle.Process, cfg.Oracle.Threshold, logger)
	default:
		return nil, fmt.Errorf("unsupported oracle kind: %s", cfg.Oracle.Kind)
	}

	return WithLimits(inner, Limits{
		MaxConcurrent: cfg.Matching.MaxConcurrency,
		RatePerSecond: cfg.Matching.RatePerSecond,
		Timeout:       time.Duration(cfg.Matching.OracleTimeoutSecs) * time.Second,
	}), nil
}
