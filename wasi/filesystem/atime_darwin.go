package filesystem

import (
	"os"
	"syscall"
	"time"

	"github.com/wippyai/wasync/wasi/clocks"
)

func accessTime(info os.FileInfo) *clocks.Datetime {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	dt := clocks.DatetimeOf(time.Unix(st.Atimespec.Sec, st.Atimespec.Nsec))
	return &dt
}
