// Package version defines the console's version and build metadata.
package version

import (
	"fmt"
	"strings"
)

// CommitHash stores the git commit hash of this build. Set with -ldflags
// during compilation.
var CommitHash string

const (
	appMajor uint = 1
	appMinor uint = 0
	appPatch uint = 0
)

// Version returns the semantic version string.
func Version() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}

// RichVersion returns the semantic version plus commit metadata when the
// build carries it.
func RichVersion() string {
	if hash := strings.TrimSpace(CommitHash); hash != "" {
		return fmt.Sprintf("%s commit_hash=%s", Version(), hash)
	}
	return Version()
}
