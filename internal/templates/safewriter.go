package templates

import "net/http"

// SafeWriter writes HTML headers exactly once, with a configurable status,
// before the first body byte
type SafeWriter struct {
	w           http.ResponseWriter
	statusCode  int
	wroteHeader bool
	written     bool
}

// NewSafeWriter wraps w
func (t *Templates) NewSafeWriter(w http.ResponseWriter) *SafeWriter {
	return &SafeWriter{w: w, statusCode: http.StatusOK}
}

// SetStatusCode sets the status used when headers are written
func (sw *SafeWriter) SetStatusCode(code int) {
	sw.statusCode = code
}

// WriteHeader sends headers once; later calls are ignored
func (sw *SafeWriter) WriteHeader(code int) {
	if sw.wroteHeader {
		return
	}
	sw.wroteHeader = true
	h := sw.w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "no-store")
	sw.w.WriteHeader(code)
}

func (sw *SafeWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.WriteHeader(sw.statusCode)
	}
	sw.written = true
	return sw.w.Write(b)
}

// Written reports whether any body bytes were written
func (sw *SafeWriter) Written() bool {
	return sw.written
}
