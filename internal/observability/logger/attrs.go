// Copyright 2026 The CredVault Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import "log/slog"

// Attribute constructors shared across the application so log keys stay
// uniform. Add keys here rather than inlining strings at call sites.

const (
	keyRequestID    = "request_id"
	keyMethod       = "method"
	keyPath         = "path"
	keyRemoteAddr   = "remote_addr"
	keyUserAgent    = "user_agent"
	keyStatusCode   = "status_code"
	keyDurationMS   = "duration_ms"
	keyUserID       = "user_id"
	keyUsername     = "username"
	keyEmail        = "email"
	keyRole         = "role"
	keyDivisionID   = "division_id"
	keyRepositoryID = "repository_id"
	keyCredentialID = "credential_id"
	keyAction       = "action"
	keyError        = "error"
	keyComponent    = "component"
	keyOperation    = "operation"
)

// Request attributes

func RequestID(id string) slog.Attr    { return slog.String(keyRequestID, id) }
func Method(method string) slog.Attr   { return slog.String(keyMethod, method) }
func Path(path string) slog.Attr       { return slog.String(keyPath, path) }
func RemoteAddr(addr string) slog.Attr { return slog.String(keyRemoteAddr, addr) }
func UserAgent(ua string) slog.Attr    { return slog.String(keyUserAgent, ua) }
func StatusCode(code int) slog.Attr    { return slog.Int(keyStatusCode, code) }
func Duration(ms int64) slog.Attr      { return slog.Int64(keyDurationMS, ms) }

// Identity attributes

func UserID(id string) slog.Attr     { return slog.String(keyUserID, id) }
func Username(name string) slog.Attr { return slog.String(keyUsername, name) }
func Email(email string) slog.Attr   { return slog.String(keyEmail, email) }
func Role(role string) slog.Attr     { return slog.String(keyRole, role) }

// Vault attributes

func DivisionID(id string) slog.Attr   { return slog.String(keyDivisionID, id) }
func RepositoryID(id string) slog.Attr { return slog.String(keyRepositoryID, id) }
func CredentialID(id string) slog.Attr { return slog.String(keyCredentialID, id) }
func Action(action string) slog.Attr   { return slog.String(keyAction, action) }

// Error reports err under the error key; a nil err yields an empty value
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(keyError, "")
	}
	return slog.String(keyError, err.Error())
}

func Component(name string) slog.Attr { return slog.String(keyComponent, name) }
func Operation(op string) slog.Attr   { return slog.String(keyOperation, op) }

// String creates a generic string attribute
func String(key, value string) slog.Attr { return slog.String(key, value) }
