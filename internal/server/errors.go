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

package server

import (
	"net/http"

	syncderrors "syncd/internal/errors"
)

// kindOf returns a stable string for an error's taxonomy kind, "error"
// for anything that didn't come from internal/errors.
func kindOf(err error) string {
	if k := syncderrors.GetKind(err); k != "" {
		return string(k)
	}
	return "error"
}

// statusFor maps the coordinator's structured error kinds onto the HTTP
// status codes spec section 7's propagation policy implies: not-found
// and invalid-request style failures are the caller's fault, transport
// and timeout failures are the coordinator's.
func statusFor(err error) int {
	switch syncderrors.GetKind(err) {
	case syncderrors.KindNotFound:
		return http.StatusNotFound
	case syncderrors.KindStaleVersion, syncderrors.KindInvalidRequest, syncderrors.KindMissingChunk:
		return http.StatusBadRequest
	case syncderrors.KindDeltaIntegrity:
		return http.StatusUnprocessableEntity
	case syncderrors.KindConflictDetected:
		return http.StatusConflict
	case syncderrors.KindSessionTimeout, syncderrors.KindTargetOffline, syncderrors.KindTransportError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
