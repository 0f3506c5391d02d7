package stream

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/gorilla/websocket"
)

var (
	// ErrSessionEnded indicates the provider closed the session normally,
	// e.g. after the configured stop block was delivered.
	ErrSessionEnded = errors.New("stream session ended")

	// ErrUnknownMessage marks a frame whose type this client does not know.
	ErrUnknownMessage = errors.New("unknown stream message type")
)

// ErrorKind classifies a streaming failure for the supervisor's retry policy.
type ErrorKind int

const (
	// KindFatal errors terminate the ingestion loop.
	KindFatal ErrorKind = iota
	// KindRetryable errors restart the session after a backoff.
	KindRetryable
)

func (k ErrorKind) String() string {
	if k == KindRetryable {
		return "retryable"
	}
	return "fatal"
}

// retryable websocket close codes: the peer went away or asked us to come
// back later, not that our request was wrong.
var retryableCloseCodes = []int{
	websocket.CloseAbnormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseServiceRestart,
	websocket.CloseTryAgainLater,
	websocket.CloseInternalServerErr,
}

// Classify decides whether an error is transient service unavailability
// (retryable) or a permanent condition (fatal). Anything not positively
// identified as transient is fatal.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindFatal
	}

	if errors.Is(err, context.Canceled) {
		return KindFatal
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return KindRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindRetryable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && (dnsErr.IsTemporary || dnsErr.IsTimeout) {
		return KindRetryable
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF):
		return KindRetryable
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		for _, code := range retryableCloseCodes {
			if closeErr.Code == code {
				return KindRetryable
			}
		}
		return KindFatal
	}

	return KindFatal
}
