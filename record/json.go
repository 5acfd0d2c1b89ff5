package record

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes the fingerprint as a [status, content] pair.
func (r Response) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{r.StatusCode, r.Content})
}

func (r *Response) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("response: expected [status, content] pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &r.StatusCode); err != nil {
		return fmt.Errorf("response status: %w", err)
	}
	if err := json.Unmarshal(pair[1], &r.Content); err != nil {
		return fmt.Errorf("response content: %w", err)
	}
	return nil
}

func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *StringSet) UnmarshalJSON(b []byte) error {
	var vs []string
	if err := json.Unmarshal(b, &vs); err != nil {
		return err
	}
	*s = StringSet{}
	for _, v := range vs {
		s.Add(v)
	}
	return nil
}

func (s TraceSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *TraceSet) UnmarshalJSON(b []byte) error {
	var ts []Trace
	if err := json.Unmarshal(b, &ts); err != nil {
		return err
	}
	*s = TraceSet{}
	for _, t := range ts {
		s.Add(t)
	}
	return nil
}

func (s ResponseSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

func (s *ResponseSet) UnmarshalJSON(b []byte) error {
	var rs []Response
	if err := json.Unmarshal(b, &rs); err != nil {
		return err
	}
	*s = ResponseSet{}
	for _, r := range rs {
		s.Add(r)
	}
	return nil
}

type wireRecord struct {
	Count      int         `json:"count"`
	Methods    StringSet   `json:"methods"`
	Tracebacks TraceSet    `json:"tracebacks"`
	Responses  ResponseSet `json:"responses"`
}

func (r CallRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord(r))
}

func (r *CallRecord) UnmarshalJSON(b []byte) error {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = CallRecord(w)
	if r.Methods == nil {
		r.Methods = StringSet{}
	}
	if r.Tracebacks == nil {
		r.Tracebacks = TraceSet{}
	}
	if r.Responses == nil {
		r.Responses = ResponseSet{}
	}
	return nil
}

type wireSummary struct {
	TotalRequests int       `json:"total_requests"`
	Domains       StringSet `json:"domains"`
	Duration      float64   `json:"duration"`
}

func (s Summary) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireSummary{
		TotalRequests: s.TotalRequests,
		Domains:       s.Domains,
		Duration:      s.Duration,
	})
}

func (s *Summary) UnmarshalJSON(b []byte) error {
	var w wireSummary
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	s.TotalRequests = w.TotalRequests
	s.Duration = w.Duration
	s.Domains = w.Domains
	if s.Domains == nil {
		s.Domains = StringSet{}
	}
	return nil
}

type wireSnapshot struct {
	Records map[string]*CallRecord `json:"logged_requests"`
	Summary Summary                `json:"analysis"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	w := wireSnapshot(s)
	if w.Records == nil {
		w.Records = map[string]*CallRecord{}
	}
	return json.Marshal(w)
}

func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var w wireSnapshot
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*s = Snapshot(w)
	if s.Records == nil {
		s.Records = map[string]*CallRecord{}
	}
	if s.Summary.Domains == nil {
		s.Summary.Domains = StringSet{}
	}
	return nil
}
