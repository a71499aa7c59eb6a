package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
)

// ErrorKind groups errors by how the resilience layer should treat them.
type ErrorKind string

const (
	KindConnection    ErrorKind = "connection"
	KindTimeout       ErrorKind = "timeout"
	KindUnavailable   ErrorKind = "unavailable"
	KindSerialization ErrorKind = "serialization"
	KindConstraint    ErrorKind = "constraint"
	KindValidation    ErrorKind = "validation"
	KindUnknown       ErrorKind = "unknown"
)

// Kinder is implemented by errors that carry their own kind.
type Kinder interface {
	Kind() ErrorKind
}

// Classifier maps an error to its kind.
type Classifier func(err error) ErrorKind

type kindError struct {
	kind ErrorKind
	err  error
}

func (e *kindError) Error() string   { return e.err.Error() }
func (e *kindError) Unwrap() error   { return e.err }
func (e *kindError) Kind() ErrorKind { return e.kind }

// WithKind tags err with kind. A nil err stays nil.
func WithKind(err error, kind ErrorKind) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// transientPatterns are matched against lowercased messages of errors that
// nothing else could classify.
var transientPatterns = []struct {
	pattern string
	kind    ErrorKind
}{
	{"lock wait timeout", KindSerialization},
	{"deadlock", KindSerialization},
	{"timeout", KindTimeout},
	{"timed out", KindTimeout},
	{"server has gone away", KindConnection},
	{"connection", KindConnection},
	{"network", KindConnection},
	{"temporary", KindUnavailable},
	{"unavailable", KindUnavailable},
}

// Classify is the default Classifier. It understands context deadlines,
// net.Error timeouts, socket-level errno values and errors implementing
// Kinder, and falls back to message patterns.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var k Kinder
	if errors.As(err, &k) {
		return k.Kind()
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindUnknown
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed):
		return KindConnection
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindConnection
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p.pattern) {
			return p.kind
		}
	}
	return KindUnknown
}

// ChainClassifiers returns a Classifier that asks each classifier in order
// and returns the first answer other than KindUnknown.
func ChainClassifiers(classifiers ...Classifier) Classifier {
	return func(err error) ErrorKind {
		for _, c := range classifiers {
			if c == nil {
				continue
			}
			if kind := c(err); kind != KindUnknown {
				return kind
			}
		}
		return KindUnknown
	}
}
