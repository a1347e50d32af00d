// Package optimizer holds the columnar lowering passes and the pipeline that
// runs them in order.
package optimizer

import (
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/paveg/colflow/internal/config"
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/logging"
	"github.com/paveg/colflow/internal/monitoring"
	"github.com/paveg/colflow/internal/rewrite"
)

// Pass names as reported in stats, logs and metrics.
const (
	PassSelectionPushdown = pushdownPass
	PassRangeFusion       = "RangeFusion"
	PassProjectionPath    = "ProjectionPathFusion"
)

// PassStats is the outcome of one pass of a pipeline run.
type PassStats struct {
	Pass string
	rewrite.Stats
}

// Pipeline lowers a graph through the enabled passes.
type Pipeline struct {
	cfg     config.Config
	logger  log.Logger
	metrics *monitoring.Metrics
}

// NewPipeline returns a pipeline configured by cfg. logger and metrics may be
// nil.
func NewPipeline(cfg config.Config, logger log.Logger, metrics *monitoring.Metrics) *Pipeline {
	return &Pipeline{
		cfg:     cfg.WithDefaults(),
		logger:  logging.With(logger, "optimizer"),
		metrics: metrics,
	}
}

type pass struct {
	name    string
	enabled bool
	pattern rewrite.Pattern
}

func (p *Pipeline) passes() []pass {
	return []pass{
		{PassSelectionPushdown, p.cfg.SelectionPushdown, SelectionPushdown{}},
		{PassRangeFusion, p.cfg.RangeFusion, RangeFusion{}},
		{PassProjectionPath, p.cfg.ProjectionPathFusion, ProjectionPath{}},
	}
}

// Run lowers a clone of g and returns it. g itself is never modified, so a
// failing pass leaves the caller with the unlowered graph only.
func (p *Pipeline) Run(g *ir.Graph) (*ir.Graph, []PassStats, error) {
	if err := g.Verify(); err != nil {
		return nil, nil, fmt.Errorf("verifying input graph: %w", err)
	}
	out := g.Clone()

	var stats []PassStats
	for _, ps := range p.passes() {
		if !ps.enabled {
			level.Debug(p.logger).Log("msg", "pass disabled", "pass", ps.name)
			continue
		}
		engine := rewrite.NewEngine(ps.name, ps.pattern)
		engine.MaxIterations = p.cfg.MaxRewriteIterations
		engine.VerifyEach = p.cfg.VerifyRewrites
		engine.Logger = p.logger
		engine.Metrics = p.metrics

		s, err := engine.Run(out)
		if err != nil {
			level.Error(p.logger).Log("msg", "lowering failed", "pass", ps.name, "err", err)
			return nil, stats, err
		}
		stats = append(stats, PassStats{Pass: ps.name, Stats: s})
		if p.cfg.VerboseLogging {
			level.Info(p.logger).Log("msg", "pass finished", "pass", ps.name,
				"rewrites", s.Rewrites, "erased", s.Erased, "iterations", s.Iterations)
		}
	}

	if err := out.Verify(); err != nil {
		return nil, stats, fmt.Errorf("verifying lowered graph: %w", err)
	}
	return out, stats, nil
}

// Optimize runs a pipeline built from the global configuration.
func Optimize(g *ir.Graph) (*ir.Graph, error) {
	out, _, err := NewPipeline(config.GetGlobalConfig(), nil, nil).Run(g)
	return out, err
}
