// Package record holds the aggregation data model shared by every store: one CallRecord per
// distinct URL plus a Summary for the whole scope.
//
// Sets are plain Go maps keyed by structural equality of their members. They cross the wire as
// JSON arrays, sorted so that two equal snapshots always encode to the same bytes.
package record

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Entry is a single intercepted call, and also the body of a collector POST.
type Entry struct {
	URL                string   `json:"url"`
	Domain             string   `json:"domain"`
	Method             string   `json:"method"`
	ResponseContent    string   `json:"response_content"`
	ResponseStatusCode int      `json:"response_status_code"`
	Duration           float64  `json:"duration"`
	Traceback          []string `json:"traceback_list"`
}

// Host returns the network location of rawurl, including any port.
func Host(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return ""
	}
	return u.Host
}

// Content is the stored form of a response body. Bodies that are not valid UTF-8 are Go quoted,
// so they cross JSON unchanged and distinct bodies stay distinct.
func Content(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}
	return strconv.Quote(string(body))
}

// Response is the fingerprint of an observed response.
type Response struct {
	StatusCode int
	Content    string
}

// Trace is one call path, outermost caller first.
type Trace []string

// key is an unambiguous encoding of the trace, used to dedup traces in a TraceSet.
func (t Trace) key() string {
	var sb strings.Builder
	for _, f := range t {
		sb.WriteString(strconv.Itoa(len(f)))
		sb.WriteByte(':')
		sb.WriteString(f)
	}
	return sb.String()
}

type StringSet map[string]struct{}

func (s StringSet) Add(v string) {
	s[v] = struct{}{}
}

func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexical order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

type TraceSet map[string]Trace

func (s TraceSet) Add(t Trace) {
	k := t.key()
	if _, ok := s[k]; ok {
		return
	}
	s[k] = append(Trace{}, t...)
}

// Sorted returns the traces ordered by their encoded key.
func (s TraceSet) Sorted() []Trace {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Trace, 0, len(s))
	for _, k := range keys {
		out = append(out, s[k])
	}
	return out
}

type ResponseSet map[Response]struct{}

func (s ResponseSet) Add(r Response) {
	s[r] = struct{}{}
}

// Sorted returns the responses ordered by status code then content.
func (s ResponseSet) Sorted() []Response {
	out := make([]Response, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StatusCode != out[j].StatusCode {
			return out[i].StatusCode < out[j].StatusCode
		}
		return out[i].Content < out[j].Content
	})
	return out
}

// CallRecord aggregates every call made to one exact URL.
type CallRecord struct {
	Count      int
	Methods    StringSet
	Tracebacks TraceSet
	Responses  ResponseSet
}

func newCallRecord() *CallRecord {
	return &CallRecord{
		Methods:    StringSet{},
		Tracebacks: TraceSet{},
		Responses:  ResponseSet{},
	}
}

func (r *CallRecord) clone() *CallRecord {
	c := newCallRecord()
	c.Count = r.Count
	for m := range r.Methods {
		c.Methods.Add(m)
	}
	for k, t := range r.Tracebacks {
		c.Tracebacks[k] = append(Trace{}, t...)
	}
	for resp := range r.Responses {
		c.Responses.Add(resp)
	}
	return c
}

// Summary describes the whole scope.
type Summary struct {
	TotalRequests int
	// Duration is the cumulative time in seconds spent in the wrapped transport.
	Duration float64
	Domains  StringSet
}

// Snapshot is the full state of one aggregation scope.
type Snapshot struct {
	Records map[string]*CallRecord
	Summary Summary
}

// NewSnapshot returns an empty scope.
func NewSnapshot() Snapshot {
	return Snapshot{
		Records: map[string]*CallRecord{},
		Summary: Summary{Domains: StringSet{}},
	}
}

// Add folds e into the snapshot, creating the record for e.URL if needed.
func (s *Snapshot) Add(e Entry) {
	if s.Records == nil {
		s.Records = map[string]*CallRecord{}
	}
	if s.Summary.Domains == nil {
		s.Summary.Domains = StringSet{}
	}

	r, ok := s.Records[e.URL]
	if !ok {
		r = newCallRecord()
		s.Records[e.URL] = r
	}
	r.Count++
	r.Methods.Add(e.Method)
	r.Tracebacks.Add(e.Traceback)
	r.Responses.Add(Response{StatusCode: e.ResponseStatusCode, Content: e.ResponseContent})

	s.Summary.TotalRequests++
	s.Summary.Duration += e.Duration
	domain := e.Domain
	if domain == "" {
		domain = Host(e.URL)
	}
	s.Summary.Domains.Add(domain)
}

// Clone returns a deep copy that shares no mutable state with s.
func (s Snapshot) Clone() Snapshot {
	c := NewSnapshot()
	for u, r := range s.Records {
		c.Records[u] = r.clone()
	}
	c.Summary.TotalRequests = s.Summary.TotalRequests
	c.Summary.Duration = s.Summary.Duration
	for d := range s.Summary.Domains {
		c.Summary.Domains.Add(d)
	}
	return c
}

// URLs returns the recorded URLs in lexical order.
func (s Snapshot) URLs() []string {
	out := make([]string, 0, len(s.Records))
	for u := range s.Records {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// UniqueTracebacks counts distinct call paths across all records.
func (s Snapshot) UniqueTracebacks() int {
	n := 0
	for _, r := range s.Records {
		n += len(r.Tracebacks)
	}
	return n
}
