package main

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	progressUpdateInterval = 100 * time.Millisecond
	clearLineSequence      = "\r\033[K"
)

// ProgressPrinter redraws a single status line with a countdown, or with
// elapsed time when no duration is set.
//
//	p := NewProgressPrinter(w, "Scanning for beacons", 10*time.Second, session.Observe)
//	p.Start()
//	defer p.Stop()
//
// A ProgressPrinter is single-use; Stop must be called to release the goroutine.
type ProgressPrinter struct {
	w        io.Writer
	prefix   string
	duration time.Duration
	count    func() int

	startTime time.Time
	started   atomic.Bool
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
}

// NewProgressPrinter creates a printer. count, when not nil, reports how many
// beacons have been found so far.
func NewProgressPrinter(w io.Writer, prefix string, duration time.Duration, count func() int) *ProgressPrinter {
	return &ProgressPrinter{
		w:        w,
		prefix:   prefix,
		duration: duration,
		count:    count,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins displaying progress updates in a background goroutine.
// Start panics if called twice.
func (p *ProgressPrinter) Start() {
	if !p.started.CompareAndSwap(false, true) {
		panic("ProgressPrinter.Start called more than once")
	}
	p.startTime = time.Now()
	p.print()

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(progressUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopChan:
				return
			case <-ticker.C:
				p.print()
			}
		}
	}()
}

func (p *ProgressPrinter) print() {
	found := ""
	if p.count != nil {
		found = fmt.Sprintf(", %d found", p.count())
	}

	elapsed := time.Since(p.startTime)
	if p.duration <= 0 {
		fmt.Fprintf(p.w, "\r%s (%ds%s)   ", p.prefix, int(elapsed.Seconds()), found)
		return
	}
	remaining := p.duration - elapsed
	seconds := 0
	if remaining > 0 {
		// Round to the nearest second, e.g. 3.7s -> 4s
		seconds = int(remaining.Seconds() + 0.5)
	}
	fmt.Fprintf(p.w, "\r%s (%ds left%s)   ", p.prefix, seconds, found)
}

// Stop terminates the display and clears the line. Safe to call more than once.
func (p *ProgressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		if !p.started.Load() {
			return
		}
		<-p.done
		fmt.Fprint(p.w, clearLineSequence)
	})
}
