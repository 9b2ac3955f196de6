// Package errors provides the engine's typed error taxonomy.
//
// Every error surfaced across a component boundary is an *EngineError*
// carrying a Kind the caller can branch on with errors.As, instead of an
// opaque fmt.Errorf. The job scheduler and orchestrator use Kind to decide
// whether a failure is retried, surfaced, or logged and swallowed.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an EngineError for retry/propagation policy.
type Kind string

const (
	// KindInvalidTransition: unknown (from, to) pair. Surfaced, never retried.
	KindInvalidTransition Kind = "invalid_transition"
	// KindGuardFailed: a transition guard or precondition returned false.
	// Surfaced; the scheduler's own retry policy absorbs races, the error
	// itself is not retried by the caller.
	KindGuardFailed Kind = "guard_failed"
	// KindTransientChain: RPC timeout, nonce collision, and similar. Retried
	// by the scheduler with backoff.
	KindTransientChain Kind = "transient_chain_error"
	// KindPermanentChain: revert, insufficient bond. Surfaced for operator
	// intervention, never retried.
	KindPermanentChain Kind = "permanent_chain_error"
	// KindPeerHTTPCritical: a critical-path peer call failed (event-manager
	// PATCH). Surfaced; retried at the next poke or indexer tick.
	KindPeerHTTPCritical Kind = "peer_http_error_critical"
	// KindPeerHTTPBestEffort: a best-effort peer call failed (reward,
	// notification). Logged only; never fails the parent operation.
	KindPeerHTTPBestEffort Kind = "peer_http_error_best_effort"
	// KindCache: any cache operation failure. Treated as a miss/no-op,
	// never fatal.
	KindCache Kind = "cache_error"
	// KindConfig: missing env var, wallet load failure. Fatal at startup.
	KindConfig Kind = "config_error"
)

// EngineError is the engine's structured error type.
type EngineError struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// WithDetails attaches structured context and returns the receiver.
func (e *EngineError) WithDetails(details map[string]any) *EngineError {
	e.Details = details
	return e
}

// IsKind reports whether err is an *EngineError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind == kind
	}
	return false
}

// Retryable reports whether the scheduler should retry an operation that
// failed with err: transient chain errors and critical-path peer HTTP
// errors are, everything else is surfaced as-is.
func Retryable(err error) bool {
	var ee *EngineError
	if !errors.As(err, &ee) {
		return false
	}
	switch ee.Kind {
	case KindTransientChain, KindPeerHTTPCritical:
		return true
	default:
		return false
	}
}

// InvalidTransition builds a KindInvalidTransition error for an (from, to) pair.
func InvalidTransition(from, to string) *EngineError {
	return &EngineError{
		Kind:       KindInvalidTransition,
		Message:    fmt.Sprintf("transition %s -> %s is not permitted", from, to),
		HTTPStatus: http.StatusConflict,
	}
}

// GuardFailed builds a KindGuardFailed error describing which precondition failed.
func GuardFailed(reason string) *EngineError {
	return &EngineError{
		Kind:       KindGuardFailed,
		Message:    reason,
		HTTPStatus: http.StatusPreconditionFailed,
	}
}

// TransientChain wraps a transient chain-adapter failure.
func TransientChain(operation string, err error) *EngineError {
	return &EngineError{
		Kind:       KindTransientChain,
		Message:    fmt.Sprintf("chain call %q failed transiently", operation),
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// PermanentChain wraps a permanent (revert-class) chain-adapter failure.
func PermanentChain(operation string, err error) *EngineError {
	return &EngineError{
		Kind:       KindPermanentChain,
		Message:    fmt.Sprintf("chain call %q reverted", operation),
		HTTPStatus: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

// PeerHTTPCritical wraps a failed critical-path peer HTTP call.
func PeerHTTPCritical(peer, path string, err error) *EngineError {
	return &EngineError{
		Kind:       KindPeerHTTPCritical,
		Message:    fmt.Sprintf("%s %s failed", peer, path),
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// PeerHTTPBestEffort wraps a failed best-effort peer HTTP call.
func PeerHTTPBestEffort(peer, path string, err error) *EngineError {
	return &EngineError{
		Kind:       KindPeerHTTPBestEffort,
		Message:    fmt.Sprintf("%s %s failed (best effort)", peer, path),
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// Cache wraps a cache-adapter failure.
func Cache(op string, err error) *EngineError {
	return &EngineError{
		Kind:       KindCache,
		Message:    fmt.Sprintf("cache %q failed", op),
		HTTPStatus: http.StatusOK,
		Err:        err,
	}
}

// Config wraps a fatal configuration or initialization failure.
func Config(message string, err error) *EngineError {
	return &EngineError{
		Kind:       KindConfig,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HTTPStatus extracts the HTTP status to report for err, defaulting to 500
// when err is not an *EngineError.
func HTTPStatus(err error) int {
	var ee *EngineError
	if errors.As(err, &ee) && ee.HTTPStatus != 0 {
		return ee.HTTPStatus
	}
	return http.StatusInternalServerError
}
