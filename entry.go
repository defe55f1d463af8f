package offcache

import (
	"net/http"
	"net/url"
	"strings"
)

// Response is a fully buffered HTTP response as captured from the network
// or replayed from a generation.
type Response struct {
	URL    string      `json:"url" msgpack:"url" cbor:"url"`
	Status int         `json:"status" msgpack:"status" cbor:"status"`
	Header http.Header `json:"header,omitempty" msgpack:"header,omitempty" cbor:"header,omitempty"`
	Body   []byte      `json:"body,omitempty" msgpack:"body,omitempty" cbor:"body,omitempty"`
}

// Clone returns a deep copy, so callers may mutate what a generation returns.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Entry is one stored request/response pair of a generation.
type Entry struct {
	// URL is the request identity (see Identity).
	URL string `json:"url" msgpack:"url" cbor:"url"`
	// Vary holds the request header values named by the response's Vary
	// header at store time, keyed by canonical header name.
	Vary     map[string]string `json:"vary,omitempty" msgpack:"vary,omitempty" cbor:"vary,omitempty"`
	Response Response          `json:"response" msgpack:"response" cbor:"response"`
}

// Identity is the normalized request identity used as a generation key: the
// absolute URL without its fragment. u must be absolute.
func Identity(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return c.String()
}

// cacheable reports whether r may be answered from a generation. Like the
// browser Cache API, only GET requests ever match.
func cacheable(r *http.Request) bool {
	return r.Method == "" || r.Method == http.MethodGet
}

// varyFields parses the Vary header of a response. star is true for "Vary: *".
func varyFields(h http.Header) (names []string, star bool) {
	for _, v := range h.Values("Vary") {
		for _, f := range strings.Split(v, ",") {
			f = strings.TrimSpace(f)
			switch f {
			case "":
			case "*":
				star = true
			default:
				names = append(names, http.CanonicalHeaderKey(f))
			}
		}
	}
	return names, star
}

func captureVary(resp, req http.Header) map[string]string {
	names, _ := varyFields(resp)
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]string, len(names))
	for _, n := range names {
		out[n] = strings.Join(req.Values(n), ", ")
	}
	return out
}

func varyMatches(e *Entry, req http.Header) bool {
	if _, star := varyFields(e.Response.Header); star {
		return false
	}
	for name, want := range e.Vary {
		if strings.Join(req.Values(name), ", ") != want {
			return false
		}
	}
	return true
}
