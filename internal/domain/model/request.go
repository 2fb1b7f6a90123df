// Package model contains the domain types shared by the offline sync engine.
package model

import (
	"net/http"
)

// Request is an outbound call passing through the interceptor.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fetched or cached HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Clone returns a deep copy so callers never share header maps or body buffers.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   cloneBytes(r.Body),
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
