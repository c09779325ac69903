// Package buildinfo carries version identity stamped into the binary at
// build time. Release builds override the defaults with -ldflags; a plain
// `go build` reports "dev".
package buildinfo

var (
	// Version is the release tag, or "dev" for untagged builds.
	Version = "dev"
	// Commit is the VCS revision the binary was built from.
	Commit = "unknown"
	// Date is the build timestamp.
	Date = "unknown"
)

// Short returns the most specific identifier available, preferring the
// release tag over the commit.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}
