// Package version reports how the colflow binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
)

const (
	unknown     = "unknown"
	shortCommit = 7
)

// Set with -ldflags "-X github.com/paveg/colflow/internal/version.Version=..."
var (
	Version   = "dev"
	BuildDate = unknown
	GitCommit = unknown
	GoVersion = runtime.Version()
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
	GoVersion string `json:"go_version"`
	Module    string `json:"module,omitempty"`
	Dirty     bool   `json:"dirty"`
	// SemVer is the normalized Version, empty for development builds.
	SemVer     string `json:"semver,omitempty"`
	Release    bool   `json:"release"`
	PreRelease bool   `json:"prerelease"`
	// Deps maps dependency module paths to their versions.
	Deps map[string]string `json:"deps,omitempty"`
}

// Info collects the ldflags values and the module data embedded by the Go
// toolchain.
func Info() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		BuildDate: BuildDate,
		GitCommit: GitCommit,
		GoVersion: GoVersion,
		Dirty:     strings.HasSuffix(GitCommit, "-dirty"),

		Release:    IsRelease(),
		PreRelease: IsPreRelease(),
	}
	if v, err := ParseSemVer(Version); err == nil {
		info.SemVer = v.String()
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.Module = bi.Main.Path
	info.Deps = make(map[string]string, len(bi.Deps))
	for _, dep := range bi.Deps {
		info.Deps[dep.Path] = dep.Version
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.modified" && s.Value == "true" {
			info.Dirty = true
		}
	}
	return info
}

func (b BuildInfo) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "colflow %s", b.Version)
	if b.Dirty {
		sb.WriteString(" (dirty)")
	}
	sb.WriteString("\n")
	if b.GitCommit != unknown && b.GitCommit != "" {
		commit := b.GitCommit
		if len(commit) > shortCommit {
			commit = commit[:shortCommit]
		}
		fmt.Fprintf(&sb, "commit:  %s\n", commit)
	}
	if b.BuildDate != unknown && b.BuildDate != "" {
		fmt.Fprintf(&sb, "built:   %s\n", b.BuildDate)
	}
	fmt.Fprintf(&sb, "go:      %s\n", b.GoVersion)
	return sb.String()
}

// UserAgent identifies colflow in outgoing requests.
func UserAgent() string {
	return "colflow/" + Version
}

// CheckPeer reports whether a peer identified by agent, as produced by
// UserAgent, may send work to this build. Builds whose version is not a
// semantic version on either side are accepted. Otherwise the major versions
// must match and the peer must not be newer.
func CheckPeer(agent string) error {
	peerVersion, ok := strings.CutPrefix(agent, "colflow/")
	if !ok {
		return fmt.Errorf("unknown peer %q", agent)
	}
	local, err := ParseSemVer(Version)
	if err != nil {
		return nil
	}
	peer, err := ParseSemVer(peerVersion)
	if err != nil {
		return nil
	}
	if peer.Major != local.Major {
		return fmt.Errorf("peer %s is incompatible with %s: major versions differ", peer, local)
	}
	if peer.Compare(local) > 0 {
		return fmt.Errorf("peer %s is newer than %s", peer, local)
	}
	return nil
}

// IsRelease reports whether Version is a plain release tag.
func IsRelease() bool {
	return Version != "dev" && !strings.Contains(Version, "-")
}

// IsPreRelease reports whether Version carries an alpha, beta or rc suffix.
func IsPreRelease() bool {
	v, err := ParseSemVer(Version)
	if err != nil {
		return false
	}
	for _, tag := range []string{"alpha", "beta", "rc"} {
		if strings.HasPrefix(v.PreRelease, tag) {
			return true
		}
	}
	return false
}

// SemVer is a parsed [v]MAJOR.MINOR.PATCH[-PRE][+BUILD] version.
type SemVer struct {
	Major      int
	Minor      int
	Patch      int
	PreRelease string
	Build      string
}

// ParseSemVer parses s. A leading "v" is accepted.
func ParseSemVer(s string) (*SemVer, error) {
	if s == "" {
		return nil, fmt.Errorf("empty version")
	}
	rest := strings.TrimPrefix(s, "v")
	v := &SemVer{}
	rest, v.Build, _ = strings.Cut(rest, "+")
	rest, v.PreRelease, _ = strings.Cut(rest, "-")

	parts := strings.Split(rest, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid version %q: want MAJOR.MINOR.PATCH", s)
	}
	nums := [3]*int{&v.Major, &v.Minor, &v.Patch}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid version %q: bad component %q", s, p)
		}
		*nums[i] = n
	}
	return v, nil
}

func (s *SemVer) String() string {
	out := fmt.Sprintf("%d.%d.%d", s.Major, s.Minor, s.Patch)
	if s.PreRelease != "" {
		out += "-" + s.PreRelease
	}
	if s.Build != "" {
		out += "+" + s.Build
	}
	return out
}

// Compare returns -1, 0 or 1. Build metadata is ignored and a release sorts
// after its pre-releases.
func (s *SemVer) Compare(other *SemVer) int {
	for _, d := range [3]int{s.Major - other.Major, s.Minor - other.Minor, s.Patch - other.Patch} {
		switch {
		case d > 0:
			return 1
		case d < 0:
			return -1
		}
	}
	switch {
	case s.PreRelease == other.PreRelease:
		return 0
	case s.PreRelease == "":
		return 1
	case other.PreRelease == "":
		return -1
	}
	return strings.Compare(s.PreRelease, other.PreRelease)
}
