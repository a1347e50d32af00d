package partition_test

import (
	"testing"

	"github.com/paveg/colflow/internal/partition"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticSplit(t *testing.T) {
	tests := []struct {
		name       string
		total      int
		chunkParam int
		workers    int
		want       []int
	}{
		{"even", 12, 1, 4, []int{3, 3, 3, 3}},
		{"remainder to early chunks", 10, 1, 4, []int{3, 3, 2, 2}},
		{"fewer units than workers", 3, 1, 8, []int{1, 1, 1}},
		{"chunk param as minimum", 10, 4, 4, []int{4, 4, 2}},
		{"single worker", 7, 1, 1, []int{7}},
		{"empty", 0, 1, 4, nil},
		{"zero workers treated as one", 5, 1, 0, []int{5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := partition.New(partition.Static, tt.total, tt.chunkParam, tt.workers)
			assert.Equal(t, tt.want, p.Chunks())
			assert.False(t, p.HasNextChunk())
			assert.Zero(t, p.NextChunk())
		})
	}
}

func TestCoverageAllPolicies(t *testing.T) {
	totals := []int{0, 1, 2, 7, 10, 99, 100, 1000, 12345}
	workers := []int{1, 2, 3, 8, 32}
	params := []int{1, 5}

	for _, pol := range partition.Policies() {
		t.Run(pol.String(), func(t *testing.T) {
			for _, total := range totals {
				for _, w := range workers {
					for _, cp := range params {
						p := partition.New(pol, total, cp, w)
						sum := 0
						for p.HasNextChunk() {
							c := p.NextChunk()
							require.Positive(t, c, "total=%d workers=%d", total, w)
							if sum+c < total {
								assert.GreaterOrEqual(t, c, cp, "only the last chunk may be short")
							}
							sum += c
							assert.Equal(t, sum < total, p.HasNextChunk())
						}
						assert.Equal(t, total, sum, "total=%d workers=%d chunkParam=%d", total, w, cp)
						assert.Zero(t, p.NextChunk())
						assert.Zero(t, p.Remaining())
					}
				}
			}
		})
	}
}

func TestDynamicPolicyShapes(t *testing.T) {
	ss := partition.New(partition.SS, 5, 1, 2).Chunks()
	assert.Equal(t, []int{1, 1, 1, 1, 1}, ss)

	gss := partition.New(partition.GSS, 100, 1, 4).Chunks()
	require.NotEmpty(t, gss)
	assert.Equal(t, 25, gss[0])
	for i := 1; i < len(gss); i++ {
		assert.LessOrEqual(t, gss[i], gss[i-1], "GSS chunks never grow")
	}

	tss := partition.New(partition.TSS, 1000, 1, 4).Chunks()
	assert.Equal(t, 125, tss[0])
	assert.Less(t, tss[len(tss)-2], tss[0])

	fac := partition.New(partition.FAC2, 800, 1, 4).Chunks()
	assert.Equal(t, []int{100, 100, 100, 100}, fac[:4])
	assert.Equal(t, 50, fac[4])

	assert.Equal(t, []int{25, 25, 25, 25}, partition.New(partition.MStatic, 100, 1, 1).Chunks())
}

func TestParsePolicy(t *testing.T) {
	for _, pol := range partition.Policies() {
		got, err := partition.ParsePolicy(pol.String())
		require.NoError(t, err)
		assert.Equal(t, pol, got)
	}

	got, err := partition.ParsePolicy(" gss ")
	require.NoError(t, err)
	assert.Equal(t, partition.GSS, got)

	_, err = partition.ParsePolicy("ROUND_ROBIN")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROUND_ROBIN")
}
