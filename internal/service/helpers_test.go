package service

import (
	"io"
	"strconv"
	"strings"

	queueMemory "fileflow/internal/queue/memory"
)

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func stringsReader(s string) io.Reader { return strings.NewReader(s) }

func newMemoryQueue() *queueMemory.Queue { return queueMemory.New(16) }
