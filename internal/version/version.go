// Package version holds build metadata set with -ldflags.
package version

// Set at build time:
//
//	go build -ldflags "-X github.com/sydlexius/nerdlinks/internal/version.Version=v1.2.3"
var (
	Version = "dev"
	Commit  = "none"
)
