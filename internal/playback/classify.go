package playback

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorClass categorizes a playback failure.
type ErrorClass int

const (
	// ClassBenign marks failures caused by a deliberate stop in progress.
	// They never trigger a retry or an advance.
	ClassBenign ErrorClass = iota
	// ClassNetwork marks transient transport failures. The previously
	// resolved URL may have expired, so a retry must force-refresh the
	// source first.
	ClassNetwork
	// ClassFatal marks everything else; handled by the retry budget and
	// ultimately a skip.
	ClassFatal
)

// String returns the class name.
func (c ErrorClass) String() string {
	switch c {
	case ClassBenign:
		return "Benign"
	case ClassNetwork:
		return "Network"
	default:
		return "Fatal"
	}
}

var benignMarkers = []string{
	"abort",
	"interrupt",
	"cancel",
}

var networkMarkers = []string{
	"connection",
	"network",
	"timeout",
	"timed out",
	"http",
	"socket",
	"dns",
	"tls",
	"unreachable",
	"reset by peer",
	"broken pipe",
	"temporarily",
}

// Classify categorizes err as Benign, Network or Fatal.
//
// Benign failures are interruption/cancellation markers produced while a
// deliberate stop was in flight. Network failures match transport markers
// or implement net.Error. Anything else is fatal for the track.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassBenign
	}
	if errors.Is(err, context.Canceled) {
		return ClassBenign
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range benignMarkers {
		if strings.Contains(msg, marker) {
			return ClassBenign
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassNetwork
	}
	for _, marker := range networkMarkers {
		if strings.Contains(msg, marker) {
			return ClassNetwork
		}
	}

	return ClassFatal
}
