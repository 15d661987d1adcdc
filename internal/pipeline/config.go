package pipeline

import (
	"stock-analyzer/internal/analysis"
	"stock-analyzer/internal/concurrent"
	"stock-analyzer/internal/config"
)

// ConfigFrom builds the service configuration from the pipeline settings
func ConfigFrom(cfg config.PipelineConfig) Config {
	out := DefaultConfig()
	if cfg.MaxConcurrency > 0 {
		out.MaxConcurrency = cfg.MaxConcurrency
	}
	out.PreviewPoints = cfg.PreviewPoints
	out.Aggregator = concurrent.AggregatorConfig{
		Sentinel: cfg.Sentinel,
		Workload: analysis.WorkloadConfig{
			MinRepeat: cfg.MinRepeat,
			MaxRepeat: cfg.MaxRepeat,
		},
	}
	return out
}
