// Package version exposes the build metadata stamped into the cdm binary.
package version

import "runtime"

// Overridden at release time via -ldflags "-X github.com/cdm-lang/cdm/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is a snapshot of the stamped build metadata plus the toolchain and
// platform the binary was compiled for.
type Info struct {
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	Platform  string
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns just the semantic version.
func (i Info) String() string {
	return i.Version
}

// Full renders every field on one line, for `cdm version`.
func (i Info) Full() string {
	return i.Version + " (" + i.Commit + ") built " + i.BuildDate + " " + i.GoVersion + " " + i.Platform
}
