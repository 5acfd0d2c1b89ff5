package record

import (
	"encoding/json"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

func TestSnapshot_Add(t *testing.T) {
	s := NewSnapshot()

	t.Run("Add repeated calls", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			s.Add(Entry{
				URL:                "http://google.com",
				Domain:             "google.com",
				Method:             "GET",
				ResponseContent:    "<html></html>",
				ResponseStatusCode: 200,
				Duration:           0.5,
				Traceback:          []string{"main.main", "main.fetch"},
			})
		}
	})

	t.Run("Check counts are conserved", func(t *testing.T) {
		r := s.Records["http://google.com"]
		assert.Assert(t, r != nil)
		assert.Check(t, cmp.Equal(r.Count, 3))
		assert.Check(t, cmp.Equal(s.Summary.TotalRequests, 3))
		assert.Check(t, cmp.Equal(s.Summary.Duration, 1.5))
	})

	t.Run("Check identical traces and responses collapse", func(t *testing.T) {
		r := s.Records["http://google.com"]
		assert.Check(t, cmp.Len(r.Tracebacks, 1))
		assert.Check(t, cmp.Len(r.Responses, 1))
		assert.Check(t, cmp.DeepEqual(r.Methods.Sorted(), []string{"GET"}))
	})

	t.Run("Add a differing response and method", func(t *testing.T) {
		s.Add(Entry{
			URL:                "http://google.com",
			Method:             "POST",
			ResponseContent:    "created",
			ResponseStatusCode: 201,
			Traceback:          []string{"main.main", "main.fetch"},
		})
	})

	t.Run("Check sets grew", func(t *testing.T) {
		r := s.Records["http://google.com"]
		assert.Check(t, cmp.Equal(r.Count, 4))
		assert.Check(t, cmp.Len(r.Responses, 2))
		assert.Check(t, cmp.Len(r.Tracebacks, 1))
		assert.Check(t, cmp.DeepEqual(r.Methods.Sorted(), []string{"GET", "POST"}))
	})

	t.Run("Check domain is derived from the url when absent", func(t *testing.T) {
		assert.Check(t, cmp.DeepEqual(s.Summary.Domains.Sorted(), []string{"google.com"}))
	})
}

func TestTraceSet_DistinguishesFrameBoundaries(t *testing.T) {
	s := TraceSet{}
	s.Add(Trace{"ab", "c"})
	s.Add(Trace{"a", "bc"})
	s.Add(Trace{"ab", "c"})
	assert.Check(t, cmp.Len(s, 2))
}

func TestContent(t *testing.T) {
	t.Run("Check text is kept as is", func(t *testing.T) {
		assert.Check(t, cmp.Equal(Content([]byte(`{"ok": "café"}`)), `{"ok": "café"}`))
	})

	t.Run("Check binary is quoted", func(t *testing.T) {
		got := Content([]byte("\xff\xd8\xff\xe0"))
		assert.Check(t, cmp.Equal(got, `"\xff\xd8\xff\xe0"`))

		b, err := json.Marshal(got)
		assert.Assert(t, err)
		var back string
		assert.Assert(t, json.Unmarshal(b, &back))
		assert.Check(t, cmp.Equal(back, got), "survives JSON")
	})

	t.Run("Check distinct binary bodies stay distinct", func(t *testing.T) {
		assert.Check(t, Content([]byte{0xff, 0x00}) != Content([]byte{0xfe, 0x00}))
	})
}

func TestSnapshot_Clone(t *testing.T) {
	s := NewSnapshot()
	s.Add(Entry{URL: "http://a.com/x", Method: "GET", ResponseStatusCode: 200, Traceback: []string{"f"}})

	c := s.Clone()
	c.Add(Entry{URL: "http://a.com/x", Method: "PUT", ResponseStatusCode: 204, Traceback: []string{"g"}})
	c.Add(Entry{URL: "http://b.com", Method: "GET", ResponseStatusCode: 200})

	assert.Check(t, cmp.Equal(s.Summary.TotalRequests, 1))
	assert.Check(t, cmp.Len(s.Records, 1))
	assert.Check(t, cmp.Equal(s.Records["http://a.com/x"].Count, 1))
	assert.Check(t, cmp.Len(s.Records["http://a.com/x"].Methods, 1))
	assert.Check(t, cmp.DeepEqual(s.Summary.Domains.Sorted(), []string{"a.com"}))
}

func TestSnapshot_JSON(t *testing.T) {
	s := NewSnapshot()
	s.Add(Entry{
		URL:                "http://google.com/?whatever",
		Domain:             "google.com",
		Method:             "GET",
		ResponseContent:    "exampleθ",
		ResponseStatusCode: 200,
		Duration:           2.1,
		Traceback:          []string{"a", "b"},
	})

	b, err := json.Marshal(s)
	assert.Assert(t, err)

	t.Run("Check wire shape", func(t *testing.T) {
		// language=json
		const expected = `{"logged_requests":{"http://google.com/?whatever":{"count":1,"methods":["GET"],` +
			`"tracebacks":[["a","b"]],"responses":[[200,"exampleθ"]]}},` +
			`"analysis":{"total_requests":1,"domains":["google.com"],"duration":2.1}}`
		assert.Check(t, cmp.Equal(string(b), expected))
	})

	t.Run("Check decoding restores sets", func(t *testing.T) {
		var got Snapshot
		err := json.Unmarshal(b, &got)
		assert.Assert(t, err)
		assert.Check(t, cmp.DeepEqual(got, s))
	})

	t.Run("Check set order on the wire is not significant", func(t *testing.T) {
		// language=json
		const unordered = `{"logged_requests":{"u":{"count":2,"methods":["POST","GET","GET"],
			"tracebacks":[["b"],["a"]],"responses":[[500,"x"],[200,"y"]]}},
			"analysis":{"total_requests":2,"domains":["z","y"],"duration":0}}`
		var got Snapshot
		err := json.Unmarshal([]byte(unordered), &got)
		assert.Assert(t, err)
		r := got.Records["u"]
		assert.Check(t, cmp.DeepEqual(r.Methods.Sorted(), []string{"GET", "POST"}))
		assert.Check(t, cmp.DeepEqual(r.Tracebacks.Sorted(), []Trace{{"a"}, {"b"}}))
		assert.Check(t, cmp.DeepEqual(r.Responses.Sorted(), []Response{{200, "y"}, {500, "x"}}))
		assert.Check(t, cmp.DeepEqual(got.Summary.Domains.Sorted(), []string{"y", "z"}))
	})

	t.Run("Check malformed response pairs are rejected", func(t *testing.T) {
		var r Response
		err := json.Unmarshal([]byte(`[200]`), &r)
		assert.Check(t, cmp.ErrorContains(err, "expected [status, content] pair"))
	})
}

func TestSnapshot_JSONEmpty(t *testing.T) {
	b, err := json.Marshal(NewSnapshot())
	assert.Assert(t, err)
	assert.Check(t, cmp.Equal(string(b),
		`{"logged_requests":{},"analysis":{"total_requests":0,"domains":[],"duration":0}}`))
}
