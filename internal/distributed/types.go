// Package distributed ships compiled pipelines to workers that hold row
// blocks of a matrix and collects their partial results.
package distributed

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/paveg/colflow/internal/matrix"
)

// Index is the (row block, column block) coordinate of a piece of data.
type Index struct {
	Row int
	Col int
}

func (ix Index) String() string { return fmt.Sprintf("(%d, %d)", ix.Row, ix.Col) }

// StoredData identifies a matrix held by a worker.
type StoredData struct {
	Identifier string
	NumRows    int
	NumCols    int
}

// Data is a task input or output: either stored on the worker or carried
// inline.
type Data struct {
	Stored *StoredData
	Values *matrix.DenseMatrix[float64]
}

// Task is one unit of remote work.
type Task struct {
	// Client identifies the sender, see version.UserAgent.
	Client string
	Inputs []Data
	// Code is the compressed pipeline blob, see EncodeCode.
	Code []byte
}

// ComputeResult holds the outputs of a task in order.
type ComputeResult struct {
	Outputs []Data
}

// Range is the block of the full matrix covered by a placement.
type Range struct {
	RowStart int
	RowLen   int
	ColStart int
	ColLen   int
}

// Placement is one piece of data placed at a worker.
type Placement struct {
	Index Index
	Data  StoredData
	Range Range
	// Placed is false once the data has been collected locally.
	Placed bool
}

// Handle maps worker addresses to the data placed there. It is safe for
// concurrent use.
type Handle struct {
	mu     sync.Mutex
	placed map[string][]Placement
}

// NewHandle returns a handle that knows the given addresses.
func NewHandle(addrs ...string) *Handle {
	h := &Handle{placed: make(map[string][]Placement, len(addrs))}
	for _, a := range addrs {
		h.placed[a] = nil
	}
	return h
}

// Insert records p at addr.
func (h *Handle) Insert(addr string, p Placement) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.placed[addr] = append(h.placed[addr], p)
}

// Addresses returns the known addresses in sorted order.
func (h *Handle) Addresses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.placed))
	for a := range h.placed {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// Placements returns a copy of the placements at addr.
func (h *Handle) Placements(addr string) []Placement {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.placed[addr])
}

// Len returns the number of placements over all addresses.
func (h *Handle) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ps := range h.placed {
		n += len(ps)
	}
	return n
}

func (h *Handle) update(addr string, id string, fn func(*Placement)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ps := h.placed[addr]
	for i := range ps {
		if ps[i].Data.Identifier == id {
			fn(&ps[i])
		}
	}
}

func (h *Handle) String() string {
	var sb strings.Builder
	for _, a := range h.Addresses() {
		for _, p := range h.Placements(a) {
			fmt.Fprintf(&sb, "%s %s rows [%d, %d) %s\n", a, p.Index, p.Range.RowStart,
				p.Range.RowStart+p.Range.RowLen, p.Data.Identifier)
		}
	}
	return sb.String()
}
