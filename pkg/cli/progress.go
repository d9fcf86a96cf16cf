package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Progress renders a single-line progress bar for a fixed number of
// operations, split into granted and denied.
type Progress struct {
	mu      sync.Mutex
	writer  io.Writer
	total   int64
	granted int64
	denied  int64
	started time.Time
	every   int64
}

// NewProgress creates a progress bar for total operations writing to w.
// If w is nil, it defaults to os.Stderr.
func NewProgress(w io.Writer, total int64) *Progress {
	if w == nil {
		w = os.Stderr
	}
	every := total / 100
	if every < 1 {
		every = 1
	}
	return &Progress{
		writer:  w,
		total:   total,
		started: time.Now(),
		every:   every,
	}
}

// Record counts one finished operation and redraws at most once per
// percent of progress.
func (p *Progress) Record(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if granted {
		p.granted++
	} else {
		p.denied++
	}
	if done := p.granted + p.denied; done%p.every == 0 || done == p.total {
		p.render()
	}
}

// Counts returns the granted and denied totals so far.
func (p *Progress) Counts() (granted, denied int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted, p.denied
}

// Finish draws the final state and ends the line.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.render()
	fmt.Fprintln(p.writer)
}

func (p *Progress) render() {
	if p.total <= 0 {
		return
	}

	done := p.granted + p.denied
	percent := float64(done) / float64(p.total) * 100
	const barWidth = 40
	filled := int(float64(barWidth) * percent / 100)
	if filled > barWidth {
		filled = barWidth
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	rate := float64(done) / time.Since(p.started).Seconds()

	fmt.Fprintf(p.writer, "\r[%s] %5.1f%% granted=%d denied=%d %.0f ops/s",
		bar, percent, p.granted, p.denied, rate)
}
