package main

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressPrinter_Countdown(t *testing.T) {
	out := &syncBuffer{}
	p := NewProgressPrinter(out, "Scanning", 5*time.Second, func() int { return 2 })

	p.Start()
	time.Sleep(150 * time.Millisecond)
	p.Stop()
	p.Stop()

	s := out.String()
	assert.Contains(t, s, "Scanning (5s left, 2 found)")
	assert.True(t, len(s) > 0 && s[len(s)-len(clearLineSequence):] == clearLineSequence, "Stop MUST clear the line")
}

func TestProgressPrinter_Elapsed(t *testing.T) {
	out := &syncBuffer{}
	p := NewProgressPrinter(out, "Watching", 0, nil)

	p.Start()
	p.Stop()

	assert.Contains(t, out.String(), "Watching (0s)")
}

func TestProgressPrinter_StopWithoutStart(t *testing.T) {
	out := &syncBuffer{}

	NewProgressPrinter(out, "x", time.Second, nil).Stop()

	assert.Empty(t, out.String())
}

func TestProgressPrinter_StartTwicePanics(t *testing.T) {
	p := NewProgressPrinter(&syncBuffer{}, "x", time.Second, nil)
	p.Start()
	defer p.Stop()

	assert.Panics(t, p.Start)
}
