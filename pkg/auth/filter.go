package auth

import (
	"bytes"
	"net/http"
)

// Response is a fully buffered HTTP response handed to a ResponseFilter.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ResponseFilter transforms a response after the handler has finished.
// Returning nil keeps the response unchanged.
type ResponseFilter func(r *http.Request, resp *Response) *Response

// bufferedWriter captures a response so it can be filtered before it is sent.
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header)}
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

// flushTo runs filter over the captured response and writes the result to w.
func (b *bufferedWriter) flushTo(w http.ResponseWriter, r *http.Request, filter ResponseFilter) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	resp := &Response{
		StatusCode: b.status,
		Header:     b.header,
		Body:       b.body.Bytes(),
	}
	if out := filter(r, resp); out != nil {
		resp = out
	}

	dst := w.Header()
	for k, v := range resp.Header {
		dst[k] = v
	}
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}
