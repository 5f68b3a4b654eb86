package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// scanProgressReporter draws a one-line spinner on a terminal. Update is
// called from scanner workers.
type scanProgressReporter struct {
	mu      sync.Mutex
	out     io.Writer
	enabled bool
	label   string
	start   time.Time
	spinner int
	lastLen int
}

func newScanProgressReporter(out io.Writer, label string, asJSON bool) *scanProgressReporter {
	enabled := false
	if f, ok := out.(*os.File); ok && !asJSON {
		stat, err := f.Stat()
		enabled = err == nil && (stat.Mode()&os.ModeCharDevice) != 0
	}
	return &scanProgressReporter{
		out:     out,
		enabled: enabled,
		label:   label,
		start:   time.Now(),
	}
}

func (r *scanProgressReporter) Update(file string, count int) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := [4]string{"-", "\\", "|", "/"}
	frame := frames[r.spinner%len(frames)]
	r.spinner++
	file = strings.TrimSpace(file)
	if len(file) > 88 {
		file = "..." + file[len(file)-85:]
	}
	r.printStatus(fmt.Sprintf("%s %s %d objects, last %s", frame, r.label, count, file))
}

func (r *scanProgressReporter) Done(count int) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.start).Round(time.Millisecond)
	r.printStatus(fmt.Sprintf("%s complete (%d objects in %s)", r.label, count, elapsed))
	fmt.Fprintln(r.out)
}

func (r *scanProgressReporter) printStatus(status string) {
	if r.lastLen > len(status) {
		status = status + strings.Repeat(" ", r.lastLen-len(status))
	}
	r.lastLen = len(status)
	fmt.Fprintf(r.out, "\r%s", status)
}
