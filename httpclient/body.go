package httpclient

import (
	"io"
	"sync/atomic"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// wrappedBody ends the client span when the response body is drained or
// closed, so the span covers the body download. The Result buffers bodies
// eagerly, which closes them before the pipeline classifies the response.
type wrappedBody struct {
	span   trace.Span
	body   io.ReadCloser
	read   atomic.Int64
	closed atomic.Bool

	onClose func(bytesRead int64)
}

// newWrappedBody wraps body. onClose receives the bytes read.
func newWrappedBody(
	span trace.Span,
	body io.ReadCloser,
	onClose func(bytesRead int64),
) io.ReadCloser {
	if body == nil {
		return nil
	}

	wb := &wrappedBody{
		span:    span,
		body:    body,
		onClose: onClose,
	}

	// 101 Switching Protocols bodies are writable.
	if _, ok := body.(io.ReadWriteCloser); ok {
		return &readWriteCloserWrapper{wrappedBody: wb}
	}

	return wb
}

func (w *wrappedBody) Read(p []byte) (int, error) {
	n, err := w.body.Read(p)
	w.read.Add(int64(n))

	switch err {
	case nil:
	case io.EOF:
		w.endSpan()
	default:
		w.span.RecordError(err)
		w.span.SetStatus(codes.Error, err.Error())
	}

	return n, err
}

func (w *wrappedBody) Close() error {
	w.endSpan()

	if w.body != nil {
		return w.body.Close()
	}
	return nil
}

func (w *wrappedBody) endSpan() {
	if w.closed.CompareAndSwap(false, true) {
		if w.onClose != nil {
			w.onClose(w.read.Load())
		}
		w.span.End()
	}
}

// readWriteCloserWrapper keeps the body writable for upgraded connections.
type readWriteCloserWrapper struct {
	*wrappedBody
}

var _ io.ReadWriteCloser = (*readWriteCloserWrapper)(nil)

func (w *readWriteCloserWrapper) Write(p []byte) (int, error) {
	writer, ok := w.body.(io.Writer)
	if !ok {
		return 0, io.ErrClosedPipe
	}

	n, err := writer.Write(p)
	if err != nil {
		w.span.RecordError(err)
		w.span.SetStatus(codes.Error, err.Error())
	}
	return n, err
}
