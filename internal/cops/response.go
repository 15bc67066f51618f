package cops

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

const responseContentType = "application/json;charset=UTF-8"

// Response is the upstream answer to a Request. The body is passed through
// untouched.
type Response struct {
	Kind      Kind
	RequestID string
	Body      []byte
	Timestamp string
}

// NewResponse wraps the upstream body of req.
func NewResponse(req *Request, body []byte) *Response {
	return &Response{
		Kind:      req.Kind,
		RequestID: req.RequestID,
		Body:      bytes.Clone(body),
		Timestamp: CurrentTimestamp(),
	}
}

func (r *Response) header() http.Header {
	h := make(http.Header)
	h.Set("Server", UserAgent())
	h.Set(headerRequestID, r.RequestID)
	h.Set("Content-Type", responseContentType)
	return h
}

// ToNetwork builds the response the proxy returns to the client.
func (r *Response) ToNetwork() *http.Response {
	h := r.header()
	h.Set("Content-Length", strconv.Itoa(len(r.Body)))
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
	}
}

// Write sends the response on w.
func (r *Response) Write(w http.ResponseWriter) error {
	for k, v := range r.header() {
		w.Header()[k] = v
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(r.Body); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
