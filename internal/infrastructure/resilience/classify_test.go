package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), KindTimeout},
		{"canceled", context.Canceled, KindUnknown},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, KindConnection},
		{"reset", syscall.ECONNRESET, KindConnection},
		{"eof", io.EOF, KindConnection},
		{"closed", net.ErrClosed, KindConnection},
		{"tagged", WithKind(errors.New("x"), KindValidation), KindValidation},
		{"wrapped tag", fmt.Errorf("outer: %w", WithKind(errors.New("x"), KindConstraint)), KindConstraint},
		{"deadlock message", errors.New("Deadlock found when trying to get lock"), KindSerialization},
		{"lock wait message", errors.New("Lock wait timeout exceeded"), KindSerialization},
		{"timeout message", errors.New("statement timeout"), KindTimeout},
		{"gone away", errors.New("MySQL server has gone away"), KindConnection},
		{"temporary message", errors.New("temporary failure in name resolution"), KindUnavailable},
		{"plain", errors.New("syntax error at or near SELECT"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWithKindNil(t *testing.T) {
	assert.NoError(t, WithKind(nil, KindTimeout))
}

func TestWithKindPreservesChain(t *testing.T) {
	base := errors.New("boom")
	err := WithKind(base, KindTimeout)

	assert.ErrorIs(t, err, base)
	assert.Equal(t, "boom", err.Error())
}

func TestChainClassifiers(t *testing.T) {
	special := errors.New("special")
	first := func(err error) ErrorKind {
		if errors.Is(err, special) {
			return KindUnavailable
		}
		return KindUnknown
	}

	chain := ChainClassifiers(nil, first, Classify)

	assert.Equal(t, KindUnavailable, chain(special))
	assert.Equal(t, KindTimeout, chain(context.DeadlineExceeded))
	assert.Equal(t, KindUnknown, chain(errors.New("nope")))
}
