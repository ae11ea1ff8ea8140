// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

// Version is the semantic version or tag for this build.
// Inject via: -X github.com/examacademy/academy-server/internal/buildinfo.Version=...
var Version = ""

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/examacademy/academy-server/internal/buildinfo.Commit=...
var Commit = ""

// BuildDate is the RFC3339 build timestamp.
// Inject via: -X github.com/examacademy/academy-server/internal/buildinfo.BuildDate=...
var BuildDate = ""

// Release returns the identifier reported to error tracking:
// "academy-server@<version>", falling back to the short commit, or "" for dev builds.
func Release() string {
	switch {
	case Version != "":
		return "academy-server@" + Version
	case len(Commit) >= 7:
		return "academy-server@" + Commit[:7]
	case Commit != "":
		return "academy-server@" + Commit
	default:
		return ""
	}
}
