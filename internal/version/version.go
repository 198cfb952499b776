// Package version holds build metadata set through -ldflags, e.g.
//
//	go build -ldflags "-X github.com/subtrack/subtrack/internal/version.Version=1.2.0"
package version

// Version is the released version of subtrack.
var Version = "0.1.0"

// GitCommit is the commit the binary was built from.
var GitCommit = "unknown"

// BuildDate is the UTC build timestamp.
var BuildDate = "unknown"
