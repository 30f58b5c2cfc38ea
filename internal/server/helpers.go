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
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	syncderrors "syncd/internal/errors"
)

// timeLayout is used for every timestamp this package renders as JSON,
// matching the teacher's preference for an explicit, parseable format
// over time.Time's default.
const timeLayout = time.RFC3339Nano

// invalidRequest wraps a binding/parsing failure as the coordinator's
// own error taxonomy, so handlers have one error path regardless of
// whether the failure came from gin's binder or from domain code.
func invalidRequest(err error) error {
	return syncderrors.InvalidRequest(err.Error())
}

// queryLimit parses the optional limit query parameter, defaulting to
// def and rejecting non-positive values by falling back to def.
func queryLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
