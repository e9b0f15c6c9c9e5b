// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded in the binary at link time:
//
//	go build -ldflags "-X genre/pkg/build.buildVersion=0.3.0 \
//	  -X genre/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X genre/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds carry no ldflags; their fields fall back to defaults so
// the CLI still starts.
package build

import "fmt"

// Info is the build metadata reported by `genre --version`.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders the version line.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}

// Populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = defaults()
)

func defaults() *Info {
	return &Info{
		Name:        "genre",
		Description: "Music genre classification from audio features",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the ldflags variables into the build info. Unset variables
// keep their defaults. It returns an error only when a version was injected
// without the commit it was built from, which indicates a broken release
// script.
func Initialize() error {
	if buildVersion != "" && buildCommit == "" {
		return fmt.Errorf("BuildCommit is required when BuildVersion is set")
	}

	info := defaults()
	if buildName != "" {
		info.Name = buildName
	}
	if buildTime != "" {
		info.Time = buildTime
	}
	if buildCommit != "" {
		info.Commit = buildCommit
	}
	if buildVersion != "" {
		info.Version = buildVersion
	}
	buildInfo = info

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildInfo
}
