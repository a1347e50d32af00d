package version_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paveg/colflow/internal/version"
)

func withVersion(t *testing.T, v string) {
	t.Helper()
	orig := version.Version
	version.Version = v
	t.Cleanup(func() { version.Version = orig })
}

func TestInfo(t *testing.T) {
	info := version.Info()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.String(), "colflow ")
	assert.Contains(t, info.String(), "go:")
}

func TestBuildInfoString(t *testing.T) {
	info := version.BuildInfo{
		Version:   "v1.2.0",
		BuildDate: "2025-03-01T00:00:00Z",
		GitCommit: "0123456789abcdef",
		GoVersion: "go1.24.4",
	}
	assert.Equal(t, "colflow v1.2.0\ncommit:  0123456\nbuilt:   2025-03-01T00:00:00Z\ngo:      go1.24.4\n", info.String())

	info = version.BuildInfo{Version: "dev", GitCommit: "unknown", BuildDate: "unknown", GoVersion: "go1.24.4", Dirty: true}
	assert.Equal(t, "colflow dev (dirty)\ngo:      go1.24.4\n", info.String())
}

func TestUserAgent(t *testing.T) {
	withVersion(t, "v0.3.1")
	assert.Equal(t, "colflow/v0.3.1", version.UserAgent())
}

func TestReleaseKinds(t *testing.T) {
	tests := []struct {
		version    string
		release    bool
		preRelease bool
	}{
		{"v1.0.0", true, false},
		{"1.0.0", true, false},
		{"dev", false, false},
		{"v1.0.0-alpha.1", false, true},
		{"v1.0.0-beta.2", false, true},
		{"v1.0.0-rc.1", false, true},
		{"v1.0.0-dirty", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			withVersion(t, tt.version)
			assert.Equal(t, tt.release, version.IsRelease())
			assert.Equal(t, tt.preRelease, version.IsPreRelease())
		})
	}
}

func TestParseSemVer(t *testing.T) {
	tests := []struct {
		in      string
		want    *version.SemVer
		wantErr bool
	}{
		{in: "1.0.0", want: &version.SemVer{Major: 1}},
		{in: "v2.1.3", want: &version.SemVer{Major: 2, Minor: 1, Patch: 3}},
		{in: "1.0.0-alpha.1", want: &version.SemVer{Major: 1, PreRelease: "alpha.1"}},
		{in: "1.0.0-beta.1+build.2", want: &version.SemVer{Major: 1, PreRelease: "beta.1", Build: "build.2"}},
		{in: "", wantErr: true},
		{in: "1.0", wantErr: true},
		{in: "a.b.c", wantErr: true},
		{in: "1.-1.0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := version.ParseSemVer(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, strings.TrimPrefix(tt.in, "v"), got.String())
		})
	}
}

func TestSemVerCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.1.0", "1.0.9", 1},
		{"2.0.0", "10.0.0", -1},
		{"1.0.0", "1.0.0-rc.1", 1},
		{"1.0.0-alpha", "1.0.0", -1},
		{"1.0.0-alpha", "1.0.0-beta", -1},
		{"1.0.0+a", "1.0.0+b", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			a, err := version.ParseSemVer(tt.a)
			require.NoError(t, err)
			b, err := version.ParseSemVer(tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Compare(b))
			assert.Equal(t, -tt.want, b.Compare(a))
		})
	}
}

func TestInfoReleaseState(t *testing.T) {
	tests := []struct {
		version    string
		semver     string
		release    bool
		preRelease bool
	}{
		{"v1.4.2", "1.4.2", true, false},
		{"v2.0.0-rc.1+build.7", "2.0.0-rc.1+build.7", false, true},
		{"dev", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			withVersion(t, tt.version)
			info := version.Info()
			assert.Equal(t, tt.version, info.Version)
			assert.Equal(t, tt.semver, info.SemVer)
			assert.Equal(t, tt.release, info.Release)
			assert.Equal(t, tt.preRelease, info.PreRelease)
		})
	}
}

func TestCheckPeer(t *testing.T) {
	tests := []struct {
		name    string
		local   string
		agent   string
		wantErr string
	}{
		{"same", "v1.2.0", "colflow/v1.2.0", ""},
		{"older peer", "v1.2.0", "colflow/v1.1.9", ""},
		{"pre-release peer", "v1.2.0", "colflow/v1.2.0-rc.1", ""},
		{"newer peer", "v1.2.0", "colflow/v1.3.0", "is newer than"},
		{"major mismatch", "v2.0.0", "colflow/v1.9.0", "major versions differ"},
		{"dev local", "dev", "colflow/v9.0.0", ""},
		{"dev peer", "v1.2.0", "colflow/dev", ""},
		{"foreign agent", "v1.2.0", "curl/8.0", "unknown peer"},
		{"empty agent", "dev", "", "unknown peer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withVersion(t, tt.local)
			err := version.CheckPeer(tt.agent)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
