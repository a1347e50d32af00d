// Package partition divides a range of work units into chunks under a
// self-scheduling policy.
package partition

import (
	"fmt"
	"math"
	"strings"

	cferrors "github.com/paveg/colflow/internal/errors"
)

// Policy selects how chunk sizes evolve as work is handed out.
type Policy uint8

const (
	// Static splits the range into one chunk per worker, the remainder going
	// to the earliest chunks.
	Static Policy = iota
	// SS is pure self-scheduling: chunks of one unit.
	SS
	// GSS is guided self-scheduling: remaining / workers.
	GSS
	// TSS is trapezoid self-scheduling: linearly decreasing chunks.
	TSS
	// FAC2 is factoring: batches of equally sized chunks halving each batch.
	FAC2
	// TFSS is trapezoid factoring: each batch uses the mean of the next
	// TSS chunks.
	TFSS
	// FISS is fixed-increase self-scheduling.
	FISS
	// VISS is variable-increase self-scheduling.
	VISS
	// PLS is performance-based loop scheduling: a static prefix, then GSS.
	PLS
	// PSS is probabilistic self-scheduling.
	PSS
	// MStatic is static scheduling with four chunks per worker.
	MStatic
	// MFSC is modified fixed-size chunking.
	MFSC
)

var policyNames = [...]string{
	Static:  "STATIC",
	SS:      "SS",
	GSS:     "GSS",
	TSS:     "TSS",
	FAC2:    "FAC2",
	TFSS:    "TFSS",
	FISS:    "FISS",
	VISS:    "VISS",
	PLS:     "PLS",
	PSS:     "PSS",
	MStatic: "MSTATIC",
	MFSC:    "MFSC",
}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return fmt.Sprintf("Policy(%d)", p)
}

// ParsePolicy parses a policy name case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for p, n := range policyNames {
		if n == name {
			return Policy(p), nil
		}
	}
	return Static, cferrors.NewInvalidInputError("partition", fmt.Sprintf("unknown partitioning policy %q", s))
}

// Policies lists every supported policy.
func Policies() []Policy {
	out := make([]Policy, len(policyNames))
	for i := range out {
		out[i] = Policy(i)
	}
	return out
}

const (
	fissStages     = 3
	plsStaticRatio = 0.5
	pssFactor      = 1.5
)

// Partitioner hands out consecutive chunk sizes that add up to the total
// exactly. It is not safe for concurrent use.
type Partitioner struct {
	policy    Policy
	total     int
	remaining int
	minChunk  int
	workers   int
	step      int

	tssFirst int
	tssDelta float64
	mfsc     int
}

// New returns a partitioner over totalUnits. chunkParam is the minimum chunk
// size (at least 1); numWorkers below 1 is treated as 1.
func New(policy Policy, totalUnits, chunkParam, numWorkers int) *Partitioner {
	p := &Partitioner{
		policy:    policy,
		total:     max(totalUnits, 0),
		remaining: max(totalUnits, 0),
		minChunk:  max(chunkParam, 1),
		workers:   max(numWorkers, 1),
	}

	// trapezoid: first = N/(2P), last = 1
	p.tssFirst = ceilDiv(p.total, 2*p.workers)
	if p.tssFirst > 1 {
		steps := ceilDiv(2*p.total, p.tssFirst+1)
		if steps > 1 {
			p.tssDelta = float64(p.tssFirst-1) / float64(steps-1)
		}
	}

	if p.total > 1 {
		p.mfsc = int(math.Ceil(float64(p.total) / (float64(p.workers) * math.Log2(float64(p.total)))))
	}
	return p
}

// HasNextChunk reports whether units remain.
func (p *Partitioner) HasNextChunk() bool {
	return p.remaining > 0
}

// Remaining returns the number of units not yet handed out.
func (p *Partitioner) Remaining() int {
	return p.remaining
}

// NextChunk returns the size of the next chunk, or 0 once exhausted.
func (p *Partitioner) NextChunk() int {
	if p.remaining == 0 {
		return 0
	}
	chunk := p.proposal()
	chunk = max(chunk, p.minChunk)
	chunk = min(chunk, p.remaining)
	p.remaining -= chunk
	p.step++
	return chunk
}

// Chunks drains the partitioner and returns every chunk size.
func (p *Partitioner) Chunks() []int {
	var out []int
	for p.HasNextChunk() {
		out = append(out, p.NextChunk())
	}
	return out
}

func (p *Partitioner) proposal() int {
	n, w := p.total, p.workers
	switch p.policy {
	case Static:
		chunk := n / w
		if p.step < n%w {
			chunk++
		}
		return chunk
	case SS:
		return 1
	case GSS:
		return ceilDiv(p.remaining, w)
	case TSS:
		return p.tss(p.step)
	case FAC2:
		batch := p.step / w
		return int(math.Ceil(math.Pow(0.5, float64(batch+1)) * float64(n) / float64(w)))
	case TFSS:
		batch := p.step / w
		sum := 0
		for k := batch * w; k < (batch+1)*w; k++ {
			sum += p.tss(k)
		}
		return ceilDiv(sum, w)
	case FISS:
		first := ceilDiv(n, (2+fissStages)*w)
		inc := math.Ceil(2 * float64(n) * (1 - float64(fissStages)/(2+fissStages)) /
			float64(w*fissStages*(fissStages-1)))
		return first + int(inc)*(p.step/w)
	case VISS:
		first := ceilDiv(n, 4*w)
		stage := p.step / w
		return int(math.Ceil(float64(first) * (2 - math.Pow(0.5, float64(stage)))))
	case PLS:
		static := int(float64(n) * plsStaticRatio)
		if n-p.remaining < static {
			return ceilDiv(static, w)
		}
		return ceilDiv(p.remaining, w)
	case PSS:
		return int(math.Ceil(float64(p.remaining) / (pssFactor * float64(w))))
	case MStatic:
		return ceilDiv(n, 4*w)
	case MFSC:
		return p.mfsc
	default:
		return p.remaining
	}
}

func (p *Partitioner) tss(step int) int {
	return max(1, int(math.Round(float64(p.tssFirst)-float64(step)*p.tssDelta)))
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}
