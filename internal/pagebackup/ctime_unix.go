//go:build !windows

package pagebackup

import (
	"os"
	"syscall"
	"time"
)

// statCtime extracts a file's inode change time, used by the
// pre-existing-file fatal rule (spec.md §4.7, §7), the same
// fileInfo.Sys().(*syscall.Stat_t) pattern as the teacher's
// tests_func/utils/util_unix.go.
func statCtime(info os.FileInfo) time.Time {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}
	return time.Unix(stat.Ctim.Sec, stat.Ctim.Nsec)
}
