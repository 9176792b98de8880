package version

import (
	"fmt"
	"io"
	"runtime"

	"github.com/lonelymovie/lonelymovie/internal/tracking"
)

// Version and Commit are overridden at build time with -ldflags -X
var (
	Version = "1.0.0"
	Commit  = "dev"
)

// String renders the one-line version banner
func String() string {
	s := fmt.Sprintf("LonelyMovie v%s (%s, %s)", Version, Commit, runtime.Version())
	if tracking.IsCgoEnabled {
		return s + " with SQLite source health"
	}
	return s + " without SQLite source health"
}

func ShowVersion(w io.Writer) {
	_, _ = fmt.Fprintln(w, String())
}
