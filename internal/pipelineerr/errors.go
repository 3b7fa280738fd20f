// Package pipelineerr defines the error taxonomy shared across the coordination
// layer: queue consumer, database gateway, voice worker, and orchestrator all
// wrap their failures in one of these sentinels so callers can branch with
// errors.Is/errors.As instead of string matching.
package pipelineerr

import (
	"errors"
	"fmt"
)

// ErrTransportUnavailable marks a broker/DB/storage/screenshot endpoint that
// could not be reached. Fatal to the process that observes it.
var ErrTransportUnavailable = errors.New("transport unavailable")

// ErrProtocolError marks a malformed message, a length mismatch, or a missing
// required field. The affected unit is marked failed; the process continues.
var ErrProtocolError = errors.New("protocol error")

// ErrSynthesisFailure marks a TTS collaborator failure.
var ErrSynthesisFailure = errors.New("synthesis failure")

// ErrStorageUploadFailure marks a non-fatal upload failure; the caller keeps
// the local path and proceeds.
var ErrStorageUploadFailure = errors.New("storage upload failure")

// ErrTimeout marks an orchestrator wait-budget overrun.
var ErrTimeout = errors.New("timeout exceeded")

// Transport wraps err as an ErrTransportUnavailable, recording what endpoint
// was being reached.
func Transport(endpoint string, err error) error {
	return fmt.Errorf("%s: %w: %w", endpoint, ErrTransportUnavailable, err)
}

// Protocol wraps a description as an ErrProtocolError.
func Protocol(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolError, fmt.Sprintf(format, args...))
}

// Synthesis wraps err as an ErrSynthesisFailure.
func Synthesis(err error) error {
	return fmt.Errorf("%w: %w", ErrSynthesisFailure, err)
}

// StorageUpload wraps err as an ErrStorageUploadFailure.
func StorageUpload(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUploadFailure, err)
}

// Timeout wraps a description as an ErrTimeout.
func Timeout(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTimeout, fmt.Sprintf(format, args...))
}
