// Package progressbar implements functionality of printing a progress
// bar to a terminal
package progressbar

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// Bar is a progress bar that must be manually managed. That is, the
// Display() function must be called whenever an updated progress bar
// should be printed. Each Display() redraws the bar in place.
//
// Bar does not use concurrency.
type Bar struct {
	w               io.Writer
	width           float64
	maxProgress     float64
	currentProgress float64
	status          string
	bar             strings.Builder
	startTime       time.Time
}

// New returns a new Bar which is width characters wide, reaches 100%
// at max, and is printed to w
func New(w io.Writer, width, max int) *Bar {
	if max <= 0 {
		max = 1
	}
	return &Bar{
		w:           w,
		width:       float64(width),
		maxProgress: float64(max),
		startTime:   time.Now(),
	}
}

// Set sets the current progress, clamped to the maximum
func (p *Bar) Set(progress int) {
	p.currentProgress = float64(progress)
	if p.currentProgress > p.maxProgress {
		p.currentProgress = p.maxProgress
	}
}

// Increment increments the progress by one
func (p *Bar) Increment() {
	p.Set(int(p.currentProgress) + 1)
}

// SetStatus sets a message displayed after the bar
func (p *Bar) SetStatus(format string, args ...interface{}) {
	p.status = fmt.Sprintf(format, args...)
}

// String returns the current bar, without terminal control sequences
func (p *Bar) String() string {
	p.bar.Reset()
	p.bar.WriteString("|")

	currentProg := p.currentProgress / p.maxProgress * p.width
	for i := 0.0; i < currentProg; i++ {
		p.bar.WriteString("█")
	}
	for i := currentProg; i < p.width; i++ {
		p.bar.WriteString(" ")
	}
	fmt.Fprintf(&p.bar, "| [%.2f%% | elapsed: %v]",
		p.currentProgress/p.maxProgress*100,
		time.Since(p.startTime).Truncate(time.Second))

	if p.status != "" {
		fmt.Fprintf(&p.bar, " %v", p.status)
	}
	return p.bar.String()
}

// Display redraws the progress bar on the current line
func (p *Bar) Display() {
	fmt.Fprintf(p.w, "\n\033[1A\033[K%v", p.String())
}

// Finish displays the bar a final time and moves to the next line
func (p *Bar) Finish() {
	p.Display()
	fmt.Fprintln(p.w)
}
