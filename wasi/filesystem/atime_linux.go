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
	dt := clocks.DatetimeOf(time.Unix(int64(st.Atim.Sec), int64(st.Atim.Nsec)))
	return &dt
}
