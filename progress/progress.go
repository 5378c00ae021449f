// Package progress tracks and reports how many bytes the tools have
// pushed so far.
package progress

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neoromfs/tools/humanize"
)

var bytesTransferred uint64

// Reset zeroes the transfer counter and returns its previous value.
func Reset() uint64 {
	return atomic.SwapUint64(&bytesTransferred, 0)
}

// Writer counts the bytes written through it. Use it behind an
// io.MultiWriter next to the real destination.
type Writer struct{}

func (w Writer) Write(p []byte) (n int, err error) {
	atomic.AddUint64(&bytesTransferred, uint64(len(p)))
	return len(p), nil
}

// Reporter periodically rewrites a status line on stderr with the
// transfer rate and, when a total is known, the percentage done.
type Reporter struct {
	total uint64

	mu     sync.Mutex
	status string
}

// SetStatus sets the prefix of the status line, e.g. the device name.
func (p *Reporter) SetStatus(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// SetTotal announces how many bytes the transfer will move in total.
func (p *Reporter) SetTotal(total uint64) {
	atomic.StoreUint64(&p.total, total)
}

func (p *Reporter) getStatus() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Report rewrites the status line once per second until ctx is
// cancelled. When stderr is not a terminal the line would not be
// rewritten but stacked, so Report stays silent entirely.
func (p *Reporter) Report(ctx context.Context) {
	if !isTerminal(os.Stderr.Fd()) {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	last := atomic.LoadUint64(&bytesTransferred)
	for {
		select {
		case <-ticker.C:
			transferred := atomic.LoadUint64(&bytesTransferred)
			if transferred < last {
				// transferred was reset
				last = 0
			}
			bytesPerS := transferred - last
			last = transferred
			rate := humanize.BPS(bytesPerS)
			status := rate
			if total := atomic.LoadUint64(&p.total); total > 0 {
				pct := float64(transferred) / float64(total) * 100
				status = fmt.Sprintf("%02.2f%% of %s, pushing at %s",
					pct,
					humanize.Bytes(total),
					rate)
			}
			fmt.Fprintf(os.Stderr, "\r[%s] %s                 ", p.getStatus(), status)
		case <-ctx.Done():
			return
		}
	}
}
