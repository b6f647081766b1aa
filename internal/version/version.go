package version

import (
	"fmt"
	"runtime"
)

// Injected at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// BuildInfo returns single-line build information for logging.
func BuildInfo() string {
	return fmt.Sprintf("embedpool %s (commit %s, built %s, %s)",
		Version,
		shortCommit(Commit),
		Date,
		runtime.Version(),
	)
}

// Full returns detailed version information for --version output.
func Full() string {
	return fmt.Sprintf(`embedpool %s
Commit:    %s
Built:     %s
Go:        %s
Platform:  %s/%s`,
		Version,
		Commit,
		Date,
		runtime.Version(),
		runtime.GOOS,
		runtime.GOARCH,
	)
}

func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
