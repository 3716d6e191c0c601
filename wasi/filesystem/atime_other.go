//go:build !linux && !darwin

package filesystem

import (
	"os"

	"github.com/wippyai/wasync/wasi/clocks"
)

// accessTime is not tracked on this platform.
func accessTime(os.FileInfo) *clocks.Datetime {
	return nil
}
