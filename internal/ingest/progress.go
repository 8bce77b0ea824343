package ingest

import (
	"github.com/dustin/go-humanize"

	"reelshare/internal/logging"
)

const progressStep = 8 << 20

// progressCounter tracks bytes written for one source and logs every few MiB.
type progressCounter struct {
	Ref   string
	Total uint64
	next  uint64
}

func (pc *progressCounter) Write(p []byte) (int, error) {
	n := len(p)
	pc.Total += uint64(n)
	if pc.Total >= pc.next {
		pc.PrintProgress()
		pc.next = pc.Total + progressStep
	}
	return n, nil
}

func (pc *progressCounter) PrintProgress() {
	logging.Debug("downloading", "source", pc.Ref, "received", humanize.Bytes(pc.Total))
}
