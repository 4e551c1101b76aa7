package vcs

import (
	"regexp"
	"strconv"
	"sync"
)

var percentPattern = regexp.MustCompile(`(\d{1,3})%`)

// progressWriter turns git sideband output such as
// "Counting objects:  45% (9/20)\r" into percentages. Only increases are
// reported, so the phases git runs through never move the bar backwards.
type progressWriter struct {
	mu      sync.Mutex
	fn      ProgressFunc
	pending []byte
	last    int
}

func newProgressWriter(fn ProgressFunc) *progressWriter {
	return &progressWriter{fn: fn, last: -1}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)
	for {
		i := indexLineEnd(w.pending)
		if i < 0 {
			break
		}
		w.line(w.pending[:i])
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

func (w *progressWriter) line(b []byte) {
	m := percentPattern.FindSubmatch(b)
	if m == nil {
		return
	}
	n, err := strconv.Atoi(string(m[1]))
	if err != nil || n > 100 || n <= w.last {
		return
	}
	w.last = n
	report(w.fn, n)
}

func indexLineEnd(b []byte) int {
	for i, c := range b {
		if c == '\r' || c == '\n' {
			return i
		}
	}
	return -1
}
