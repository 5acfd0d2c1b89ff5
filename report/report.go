// Package report renders a snapshot as the plain text summary printed at the end of a monitored
// test run.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/circleci/netmonitor/colourise"
	"github.com/circleci/netmonitor/record"
)

const DefaultInspectLimit = 10

type Options struct {
	// URLs lists every recorded URL with its request count.
	URLs bool
	// Tracebacks adds the distinct call paths under each URL. Implies URLs.
	Tracebacks bool
	// Responses adds the distinct responses under each URL. Implies URLs.
	Responses bool
	// Debug implies Tracebacks and Responses.
	Debug bool
	// InspectLimit is how many of the innermost frames of each traceback are shown.
	// Zero means DefaultInspectLimit, a negative value shows whole tracebacks.
	InspectLimit int
	// Output defaults to os.Stdout.
	Output io.Writer
	// Colour adorns URLs and status codes with ANSI colours.
	Colour bool
	// Stop asks the monitor to stop intercepting once the report is written.
	Stop bool
}

func (o Options) withDefaults() Options {
	if o.Output == nil {
		o.Output = os.Stdout
	}
	if o.InspectLimit == 0 {
		o.InspectLimit = DefaultInspectLimit
	}
	if o.Debug {
		o.Tracebacks = true
		o.Responses = true
	}
	if o.Tracebacks || o.Responses {
		o.URLs = true
	}
	return o
}

// Write renders snap to opts.Output. On a terminal the analysis comes last so it is what
// remains on screen; anywhere else it heads the report.
func Write(snap record.Snapshot, opts Options) error {
	opts = opts.withDefaults()
	w := &writer{bw: bufio.NewWriter(opts.Output), opts: opts}

	last := opts.Output == os.Stdout
	if !last {
		w.analysis(snap)
	}
	if opts.URLs {
		w.urls(snap)
	}
	if last {
		w.analysis(snap)
	}
	return w.bw.Flush()
}

type writer struct {
	bw   *bufio.Writer
	opts Options
}

func (w *writer) printf(format string, args ...interface{}) {
	// bufio keeps the first error and returns it from Flush
	_, _ = fmt.Fprintf(w.bw, format, args...)
}

func (w *writer) analysis(snap record.Snapshot) {
	w.printf("___________Analysis__________\n\n")
	w.printf("Total Requests:    %d\n", snap.Summary.TotalRequests)
	w.printf("Unique Tracebacks: %d\n", snap.UniqueTracebacks())
	w.printf("Time (Seconds):    %s\n", strconv.FormatFloat(snap.Summary.Duration, 'f', -1, 64))
	w.printf("URL Count:         %d\n", len(snap.Records))
	w.printf("Domain Count:      %d\n", len(snap.Summary.Domains))
	w.printf("Domains:           %s\n", strings.Join(snap.Summary.Domains.Sorted(), ", "))
}

func (w *writer) urls(snap record.Snapshot) {
	w.printf("__________URLS__________\n\n")
	for _, u := range snap.URLs() {
		r := snap.Records[u]
		w.printf("__________URL________\n")
		if w.opts.Colour {
			w.printf("URL:      %s\n", colourise.ApplyColour(u))
		} else {
			w.printf("URL:      %s\n", u)
		}
		w.printf("Requests: %d\n", r.Count)
		w.printf("Methods:  %s\n", strings.Join(r.Methods.Sorted(), ", "))
		if w.opts.Tracebacks {
			w.tracebacks(r)
		}
		if w.opts.Responses {
			w.responses(r)
		}
		w.printf("\n")
	}
}

func (w *writer) tracebacks(r *record.CallRecord) {
	w.printf("______Tracebacks_____\n")
	for _, tb := range r.Tracebacks.Sorted() {
		if limit := w.opts.InspectLimit; limit > 0 && len(tb) > limit {
			tb = tb[len(tb)-limit:]
		}
		w.printf("____Traceback____\n")
		w.printf("%s\n", strings.TrimSpace(strings.Join(tb, "\n")))
	}
}

func (w *writer) responses(r *record.CallRecord) {
	w.printf("_______Responses______\n")
	for _, rs := range r.Responses.Sorted() {
		status := strconv.Itoa(rs.StatusCode)
		if w.opts.Colour {
			status = colourise.Status(rs.StatusCode, status)
		}
		w.printf("____Response____\n")
		w.printf("<StatusCode>%s</StatusCode>\n", status)
		w.printf("<Content>%s</Content>\n", rs.Content)
	}
}
