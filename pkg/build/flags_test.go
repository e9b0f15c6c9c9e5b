// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origInfo    Info
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origInfo = *buildInfo

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildInfo = origInfo

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
		want        Info
	}{
		{
			"Development Build",
			"", "", "", "",
			"",
			Info{Name: "genre", Time: "unknown", Commit: "unknown", Version: "dev"},
		},
		{
			"Version Without Commit",
			"", "2025-04-13", "", "v1.0.0",
			"BuildCommit is required when BuildVersion is set",
			Info{},
		},
		{
			"Release Build",
			"genre", "2025-04-13", "abcdef123", "v1.0.0",
			"",
			Info{Name: "genre", Time: "2025-04-13", Commit: "abcdef123", Version: "v1.0.0"},
		},
		{
			"Commit Only",
			"", "", "abcdef123", "",
			"",
			Info{Name: "genre", Time: "unknown", Commit: "abcdef123", Version: "dev"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil || err.Error() != tt.wantErrMsg {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}

			got := GetBuildFlags()
			if got.Name != tt.want.Name || got.Time != tt.want.Time ||
				got.Commit != tt.want.Commit || got.Version != tt.want.Version {
				t.Errorf("GetBuildFlags() = %+v, want %+v", got, tt.want)
			}
			if got.Description == "" {
				t.Error("Description should always be set")
			}
		})
	}
}

func TestInfoString(t *testing.T) {
	info := Info{Version: "v1.2.3", Commit: "abc", Time: "2025-04-13"}
	want := "v1.2.3 (commit abc, built 2025-04-13)"
	if got := info.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
