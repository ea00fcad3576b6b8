package version

import "fmt"

// Build-time variables set via ldflags, e.g.
//
//	go build -ldflags "-X github.com/medaccess-portal/portalcore/internal/version.version=v0.3.0"
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// Info represents version information
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitCommit string `json:"git_commit"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		Version:   version,
		BuildDate: buildDate,
		GitCommit: gitCommit,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s (built %s, commit %s)", i.Version, i.BuildDate, i.GitCommit)
}

// UserAgent is sent on every outbound request
func UserAgent() string {
	return "portalcore/" + version
}
