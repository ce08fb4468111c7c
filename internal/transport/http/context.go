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

package http

import (
	"context"

	"github.com/credvault/credvault/internal/identity"
)

type contextKey string

const currentUserKey contextKey = "current_user"

// CurrentUser retrieves the authenticated user from context. Returns nil
// on unauthenticated requests.
func CurrentUser(ctx context.Context) *identity.User {
	if user, ok := ctx.Value(currentUserKey).(*identity.User); ok {
		return user
	}
	return nil
}

func withCurrentUser(ctx context.Context, user *identity.User) context.Context {
	return context.WithValue(ctx, currentUserKey, user)
}
