package version

import "fmt"

// Set via -ldflags "-X btcwatch/internal/version.Version=..." at release time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build metadata printed by `btcwatch version`.
func String() string {
	return fmt.Sprintf("btcwatch %s\ncommit: %s\nbuilt: %s", Version, Commit, BuildDate)
}
