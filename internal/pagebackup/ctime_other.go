//go:build windows

package pagebackup

import (
	"os"
	"time"
)

// statCtime falls back to mtime on platforms without a POSIX ctime.
func statCtime(info os.FileInfo) time.Time {
	return info.ModTime()
}
