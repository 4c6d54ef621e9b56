//go:build linux

package analyzer

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// birthTime asks statx for the creation time; filesystems without it report the mtime.
func birthTime(path string, st fs.FileInfo) time.Time {
	var sx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, path, 0, unix.STATX_BTIME, &sx); err != nil {
		return st.ModTime()
	}
	if sx.Mask&unix.STATX_BTIME == 0 || sx.Btime.Sec == 0 {
		return st.ModTime()
	}
	return time.Unix(sx.Btime.Sec, int64(sx.Btime.Nsec))
}
