//go:build !linux

package analyzer

import (
	"io/fs"
	"time"
)

func birthTime(_ string, st fs.FileInfo) time.Time {
	return st.ModTime()
}
