/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package errors provides the structured error taxonomy used throughout the
coordinator.

Error kinds map directly to spec section 7's propagation policy:

  - NotFound, StaleVersion, MissingChunk, InvalidRequest are returned to the
    caller without any coordinator-side retry.
  - DeltaIntegrityError, SessionTimeout, TargetOffline, TransportError move
    a replication session to Failed and emit a sync_error event; they are
    never retried automatically.
  - ConflictDetected is not really a failure: it is accepted, a conflict
    record is created, and the caller sees success with a conflict
    reference.
*/
package errors

import "fmt"

// Kind identifies the category of a SyncError.
type Kind string

const (
	KindNotFound         Kind = "NOT_FOUND"
	KindStaleVersion     Kind = "STALE_VERSION"
	KindMissingChunk     Kind = "MISSING_CHUNK"
	KindDeltaIntegrity   Kind = "DELTA_INTEGRITY_ERROR"
	KindConflictDetected Kind = "CONFLICT_DETECTED"
	KindSessionTimeout   Kind = "SESSION_TIMEOUT"
	KindTargetOffline    Kind = "TARGET_OFFLINE"
	KindTransportError   Kind = "TRANSPORT_ERROR"
	KindInvalidRequest   Kind = "INVALID_REQUEST"
)

// SyncError is a structured coordinator error.
type SyncError struct {
	Kind    Kind
	Message string
	Detail  string
	Hint    string
	Cause   error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// WithDetail attaches additional machine-oriented detail.
func (e *SyncError) WithDetail(detail string) *SyncError {
	e.Detail = detail
	return e
}

// WithHint attaches an operator-facing hint.
func (e *SyncError) WithHint(hint string) *SyncError {
	e.Hint = hint
	return e
}

// WithCause attaches the underlying error that produced this one.
func (e *SyncError) WithCause(cause error) *SyncError {
	e.Cause = cause
	return e
}

func newErr(kind Kind, message string) *SyncError {
	return &SyncError{Kind: kind, Message: message}
}

// NotFound builds a NotFound error for the given resource.
func NotFound(resource, id string) *SyncError {
	return newErr(KindNotFound, fmt.Sprintf("%s not found", resource)).WithDetail(id)
}

// StaleVersion builds a StaleVersion error: the submitted clock is not a
// descendant of the current head.
func StaleVersion(fileID string) *SyncError {
	return newErr(KindStaleVersion, "submitted vector clock is not a descendant of the current head").
		WithDetail(fileID).
		WithHint("merge with the current head's clock and retry")
}

// MissingChunk builds a MissingChunk error for a hash the caller must
// upload before the version can be created.
func MissingChunk(hash string) *SyncError {
	return newErr(KindMissingChunk, "chunk list references a hash not present in the chunk store").
		WithDetail(hash).
		WithHint("upload the chunk body before retrying")
}

// DeltaIntegrityError builds an error for a failed apply() content-hash
// verification.
func DeltaIntegrityError(expected, got string) *SyncError {
	return newErr(KindDeltaIntegrity, "reconstructed content hash does not match declared hash").
		WithDetail(fmt.Sprintf("expected=%s got=%s", expected, got))
}

// ConflictDetected is not an error in the usual sense; it is returned
// alongside a successful version creation to signal that a conflict was
// recorded.
func ConflictDetected(conflictID string) *SyncError {
	return newErr(KindConflictDetected, "concurrent head created").WithDetail(conflictID)
}

// SessionTimeout builds an error for a replication session that exceeded
// its per-step or per-session deadline.
func SessionTimeout(sessionID string) *SyncError {
	return newErr(KindSessionTimeout, "replication session exceeded its deadline").WithDetail(sessionID)
}

// TargetOffline builds an error for a session whose target went offline
// mid-transfer.
func TargetOffline(nodeID string) *SyncError {
	return newErr(KindTargetOffline, "target node went offline").WithDetail(nodeID)
}

// TransportError wraps an underlying I/O failure.
func TransportError(cause error) *SyncError {
	return newErr(KindTransportError, "transport failure").WithCause(cause)
}

// InvalidRequest builds an error for malformed input rejected at the
// boundary.
func InvalidRequest(reason string) *SyncError {
	return newErr(KindInvalidRequest, "invalid request").WithDetail(reason)
}

// GetKind returns the Kind of err if it is a *SyncError, or "" otherwise.
func GetKind(err error) Kind {
	if e, ok := err.(*SyncError); ok {
		return e.Kind
	}
	return ""
}

// Is reports whether err is a *SyncError of the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
