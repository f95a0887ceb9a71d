package resilience

import (
	"fmt"
	"runtime"
)

// Version is the library version, set at build time via -ldflags.
var Version = "dev"

// UserAgent returns the value callers may attach to outbound requests.
func UserAgent() string {
	return fmt.Sprintf("chat-studio-resilience/%s (%s; %s)", Version, runtime.GOOS, runtime.GOARCH)
}
