package playback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassBenign},
		{"context canceled", context.Canceled, ClassBenign},
		{"wrapped cancel", fmt.Errorf("load: %w", context.Canceled), ClassBenign},
		{"abort marker", errors.New("request aborted"), ClassBenign},
		{"interrupt marker", errors.New("playback interrupted by stop"), ClassBenign},
		{"deadline exceeded", context.DeadlineExceeded, ClassNetwork},
		{"connection refused", errors.New("dial tcp: connection refused"), ClassNetwork},
		{"http status", errors.New("unexpected status: 503 http error"), ClassNetwork},
		{"dns failure", errors.New("lookup cdn.example: dns failure"), ClassNetwork},
		{"tls handshake", errors.New("tls: handshake failure"), ClassNetwork},
		{"reset by peer", errors.New("read: connection reset by peer"), ClassNetwork},
		{"decode failure", errors.New("mp3: invalid frame header"), ClassFatal},
		{"missing file", errors.New("open /x.mp3: no such file or directory"), ClassFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassify_NetError(t *testing.T) {
	var err error = &net.DNSError{Err: "no such host", Name: "cdn.example", IsNotFound: true}
	assert.Equal(t, ClassNetwork, Classify(err))

	wrapped := fmt.Errorf("resolve stream: %w", err)
	assert.Equal(t, ClassNetwork, Classify(wrapped))
}

func TestClassify_BenignWinsOverNetwork(t *testing.T) {
	// A cancellation that also mentions a transport word stays benign:
	// the benign scan runs first.
	err := errors.New("http request canceled")
	assert.Equal(t, ClassBenign, Classify(err))
}
