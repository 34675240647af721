// Package version holds ntropiq build information. Version, GitCommit and BuildDate
// are injected at build time with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Build information set at compile time.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info is the build information reported by `ntropiq version` and /health.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"gitCommit" yaml:"git_commit"`
	BuildDate string `json:"buildDate" yaml:"build_date"`
	GoVersion string `json:"goVersion" yaml:"go_version"`
	Platform  string `json:"platform" yaml:"platform"`
	semver    *semver.Version
}

// GetInfo parses Version and returns the build information.
func GetInfo() (*Info, error) {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}
	return &Info{
		Version:   sv.String(),
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		semver:    sv,
	}, nil
}

// String returns "ntropiq v<version>" plus the short commit and build date when known.
func (i *Info) String() string {
	parts := []string{fmt.Sprintf("ntropiq v%s", i.Version)}
	if i.GitCommit != "unknown" && i.GitCommit != "" {
		short := i.GitCommit
		if len(short) > 7 {
			short = short[:7]
		}
		parts = append(parts, "commit "+short)
	}
	if i.BuildDate != "unknown" && i.BuildDate != "" {
		parts = append(parts, "built "+i.BuildDate)
	}
	return strings.Join(parts, ", ")
}

// Detailed returns one field per line for bug reports.
func (i *Info) Detailed() string {
	lines := []string{
		fmt.Sprintf("ntropiq v%s", i.Version),
		"Git Commit: " + i.GitCommit,
		"Build Date: " + i.BuildDate,
	}
	if meta := i.semver.Metadata(); meta != "" {
		lines = append(lines, "Build Metadata: "+meta)
	}
	if pre := i.semver.Prerelease(); pre != "" {
		lines = append(lines, "Prerelease: "+pre)
	}
	lines = append(lines, "Go Version: "+i.GoVersion, "Platform: "+i.Platform)
	return strings.Join(lines, "\n")
}

// IsDevelopment reports a build without injected commit or date.
func (i *Info) IsDevelopment() bool {
	return i.GitCommit == "unknown" || i.BuildDate == "unknown"
}

// Satisfies reports whether the version meets a semver constraint such as "^0.1" or ">= 0.2.0".
func (i *Info) Satisfies(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint '%s': %w", constraint, err)
	}
	return c.Check(i.semver), nil
}
