package rewrite

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/logging"
	"github.com/paveg/colflow/internal/monitoring"
)

// DefaultMaxIterations bounds the number of sweeps of one engine run.
const DefaultMaxIterations = 32

// Pattern is a single rewrite rule.
type Pattern interface {
	Name() string
	// Legal reports whether the node is already in optimized form and must
	// be skipped.
	Legal(g *ir.Graph, id ir.NodeID) bool
	// Match builds the replacement for an illegal node. A nil plan declines
	// the match; an error aborts the run.
	Match(g *ir.Graph, id ir.NodeID) (*Plan, error)
}

// Stats summarizes one engine run.
type Stats struct {
	Iterations int
	Rewrites   int
	Erased     int
}

// Engine applies patterns to a fixed point.
type Engine struct {
	// Name identifies the pass in logs and metrics.
	Name          string
	Patterns      []Pattern
	MaxIterations int
	// VerifyEach runs ir.Graph.Verify after every commit.
	VerifyEach bool

	Logger  log.Logger
	Metrics *monitoring.Metrics
}

// NewEngine returns an engine with the default iteration bound.
func NewEngine(name string, patterns ...Pattern) *Engine {
	return &Engine{
		Name:          name,
		Patterns:      patterns,
		MaxIterations: DefaultMaxIterations,
	}
}

// Run sweeps the graph in program order, committing the plan of every
// matching pattern, removes dead pure nodes and repeats until a sweep
// commits nothing. It returns cferrors.ErrNotConverged (wrapped) when the
// iteration bound is exceeded.
func (e *Engine) Run(g *ir.Graph) (Stats, error) {
	logger := logging.With(e.Logger, "rewrite")
	start := time.Now()
	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	var stats Stats
	for {
		if stats.Iterations == maxIter {
			return stats, fmt.Errorf("pass %s after %d iterations: %w", e.Name, maxIter, cferrors.ErrNotConverged)
		}
		stats.Iterations++

		rewrites, err := e.sweep(g, logger)
		stats.Rewrites += rewrites
		if err != nil {
			return stats, err
		}
		erased, err := EliminateDeadCode(g)
		stats.Erased += erased
		if err != nil {
			return stats, err
		}
		if rewrites == 0 {
			break
		}
	}

	e.Metrics.RecordPass(e.Name, time.Since(start), stats.Erased)
	level.Debug(logger).Log("msg", "pass converged", "pass", e.Name,
		"iterations", stats.Iterations, "rewrites", stats.Rewrites, "erased", stats.Erased,
		"duration", time.Since(start))
	return stats, nil
}

func (e *Engine) sweep(g *ir.Graph, logger log.Logger) (int, error) {
	rewrites := 0
	for _, id := range g.Nodes() {
		for _, pat := range e.Patterns {
			if !g.Live(id) {
				break
			}
			if pat.Legal(g, id) {
				continue
			}
			plan, err := pat.Match(g, id)
			if err != nil {
				return rewrites, fmt.Errorf("pass %s, pattern %s at %%%d: %w", e.Name, pat.Name(), id, err)
			}
			if plan == nil || plan.Empty() {
				continue
			}
			if _, err := plan.Commit(g); err != nil {
				return rewrites, fmt.Errorf("pass %s, pattern %s at %%%d: %w", e.Name, pat.Name(), id, err)
			}
			rewrites++
			e.Metrics.RecordRewrite(e.Name, pat.Name())
			level.Debug(logger).Log("msg", "rewrite committed", "pass", e.Name, "pattern", pat.Name(), "node", id)

			if e.VerifyEach {
				if err := g.Verify(); err != nil {
					return rewrites, cferrors.NewInternalError("rewrite", err)
				}
			}
		}
	}
	return rewrites, nil
}

// EliminateDeadCode erases pure nodes whose results are unused, in reverse
// program order so whole dead chains go in one call.
func EliminateDeadCode(g *ir.Graph) (int, error) {
	ids := g.Nodes()
	slices.Reverse(ids)
	erased := 0
	for _, id := range ids {
		n := g.Node(id)
		if n == nil || !ir.IsPure(n.Op()) || g.HasUsers(id) {
			continue
		}
		if err := g.Erase(id); err != nil {
			return erased, err
		}
		erased++
	}
	return erased, nil
}
