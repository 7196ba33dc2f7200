package player

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"time"

	"github.com/teanglann/fuaim/pkg/manifest"
)

// ErrorKind classifies an audio loading or playback failure.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota
	KindNetworkError
	KindTimeout
	KindCORSError
	KindFormatUnsupported
	KindDecodeError
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindNetworkError:
		return "NETWORK_ERROR"
	case KindTimeout:
		return "TIMEOUT"
	case KindCORSError:
		return "CORS_ERROR"
	case KindFormatUnsupported:
		return "FORMAT_UNSUPPORTED"
	case KindDecodeError:
		return "DECODE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// RecoveryOptions is the retry policy attached to a classified error.
type RecoveryOptions struct {
	MaxRetries        int
	RetryDelay        time.Duration
	CanFallbackFormat bool
}

// RecoveryFor returns the retry policy for an error kind. Transient
// network conditions get retries with backoff; format problems get a
// single retry aimed at the fallback format, since retrying the same
// path is futile; CORS and decode failures are not retryable.
func RecoveryFor(kind ErrorKind) RecoveryOptions {
	switch kind {
	case KindNotFound, KindFormatUnsupported:
		return RecoveryOptions{MaxRetries: 1, RetryDelay: 500 * time.Millisecond, CanFallbackFormat: true}
	case KindNetworkError:
		return RecoveryOptions{MaxRetries: 3, RetryDelay: time.Second}
	case KindTimeout:
		return RecoveryOptions{MaxRetries: 2, RetryDelay: 2 * time.Second}
	case KindCORSError, KindDecodeError:
		return RecoveryOptions{}
	default:
		return RecoveryOptions{MaxRetries: 1, RetryDelay: time.Second}
	}
}

// userMessages is the static lookup from error kind to the sanitized
// message shown to end users. Raw status codes never appear here.
var userMessages = map[ErrorKind]string{
	KindNotFound:          "This audio clip could not be found.",
	KindNetworkError:      "A network problem stopped the audio from loading. Please try again.",
	KindTimeout:           "Loading the audio took too long. Please try again.",
	KindCORSError:         "This audio clip cannot be played from here.",
	KindFormatUnsupported: "This audio format is not supported on your device.",
	KindDecodeError:       "The audio file could not be played back.",
	KindUnknown:           "Something went wrong while playing this sound.",
}

// AudioError is the typed failure surfaced across the package boundary.
type AudioError struct {
	Kind        ErrorKind
	Message     string // raw diagnostic, kept for logs
	UserMessage string // sanitized, safe to display
	Recovery    RecoveryOptions
	cause       error
}

func (e *AudioError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AudioError) Unwrap() error { return e.cause }

// Sentinel errors for the player package.
var (
	ErrUnsupportedFormat = errors.New("audio format not supported by decoder")
	ErrManagerDestroyed  = errors.New("playback manager has been destroyed")
	ErrOutputLocked      = errors.New("audio output is locked pending user unlock")
	ErrNoManifest        = errors.New("manifest is required")
	ErrNoFetcher         = errors.New("fetcher is required")
)

// FailureOp names the stage a failure occurred in.
type FailureOp string

const (
	OpResolve FailureOp = "resolve"
	OpFetch   FailureOp = "fetch"
	OpDecode  FailureOp = "decode"
)

// HTTPError is returned by fetchers for non-success responses.
type HTTPError struct {
	Status      int
	URL         string
	CrossOrigin bool // true when cross-origin headers did not permit the request
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.Status, e.URL)
}

// Failure is the raw material handed to Classify.
type Failure struct {
	Op   FailureOp
	Path string
	Err  error
}

// Classify inspects a raw failure and produces the typed AudioError with
// its user message and recovery policy. Rules are checked in order: not
// found, unsupported format, timeout, cross-origin, other client errors,
// decode, transport.
func Classify(f Failure) *AudioError {
	kind := classifyKind(f)

	msg := "unknown failure"
	if f.Err != nil {
		msg = f.Err.Error()
	}
	if f.Path != "" {
		msg = fmt.Sprintf("%s %s: %s", f.Op, f.Path, msg)
	}

	return &AudioError{
		Kind:        kind,
		Message:     msg,
		UserMessage: userMessages[kind],
		Recovery:    RecoveryFor(kind),
		cause:       f.Err,
	}
}

func classifyKind(f Failure) ErrorKind {
	var httpErr *HTTPError
	status := 0
	crossOrigin := false
	if errors.As(f.Err, &httpErr) {
		status = httpErr.Status
		crossOrigin = httpErr.CrossOrigin
	}

	lower := ""
	if f.Err != nil {
		lower = strings.ToLower(f.Err.Error())
	}

	switch {
	case status == 404,
		errors.Is(f.Err, manifest.ErrAssetNotFound),
		errors.Is(f.Err, fs.ErrNotExist),
		strings.Contains(lower, "not found"):
		return KindNotFound

	case status == 415,
		errors.Is(f.Err, ErrUnsupportedFormat),
		errors.Is(f.Err, manifest.ErrFormatUnavailable):
		return KindFormatUnsupported

	case errors.Is(f.Err, context.DeadlineExceeded), isNetTimeout(f.Err):
		return KindTimeout

	case status >= 400 && status < 500:
		if crossOrigin || strings.Contains(lower, "cors") {
			return KindCORSError
		}
		return KindNetworkError

	case strings.Contains(lower, "cors"):
		return KindCORSError

	case f.Op == OpDecode && f.Err != nil:
		return KindDecodeError

	case status >= 500, f.Op == OpFetch && f.Err != nil:
		return KindNetworkError

	default:
		return KindUnknown
	}
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
