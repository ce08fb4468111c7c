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

package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/credvault/credvault/internal/id"
)

// AsyncRecorder persists audit entries from a background worker so the
// request path never waits on the trail. Entries are dropped, with a log
// line, when the queue is full or the insert fails: an unavailable trail
// must not take the primary operation down with it.
type AsyncRecorder struct {
	repo    EntryRepository
	queue   chan Entry
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool
}

// NewAsyncRecorder starts a recorder draining into repo. Call Close to
// flush outstanding entries on shutdown.
func NewAsyncRecorder(repo EntryRepository, queueSize int) *AsyncRecorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	r := &AsyncRecorder{
		repo:  repo,
		queue: make(chan Entry, queueSize),
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Record enqueues an entry. It never blocks and never returns an error.
func (r *AsyncRecorder) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = id.NewUUIDv7()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.Details = Redact(entry.Details)

	r.closeMu.Lock()
	defer r.closeMu.Unlock()
	if r.closed {
		slog.Warn("audit entry dropped: recorder closed",
			slog.String("action", entry.Action),
			slog.String("user_id", entry.UserID))
		return
	}

	select {
	case r.queue <- entry:
	default:
		slog.Warn("audit entry dropped: queue full",
			slog.String("action", entry.Action),
			slog.String("user_id", entry.UserID))
	}
}

// Close stops the worker after flushing queued entries
func (r *AsyncRecorder) Close() {
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.closeMu.Unlock()

	r.wg.Wait()
}

func (r *AsyncRecorder) drain() {
	defer r.wg.Done()
	for entry := range r.queue {
		// Detached from any request context; inserts get their own deadline
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.repo.Insert(ctx, &entry); err != nil {
			slog.Error("failed to persist audit entry",
				slog.String("action", entry.Action),
				slog.String("user_id", entry.UserID),
				slog.String("error", err.Error()))
		}
		cancel()
	}
}
