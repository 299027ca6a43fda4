// Package conflict implements the conflict service of spec §4.11:
// detection is emitted for observability regardless of whether a
// resolver is configured, a configured resolver is awaited under a
// soft timeout, and the outcome is applied to the cache and pending
// queue. Grounded on internal/resolver/resolver.go's ranked-candidate
// selection (ResolveBest/ResolveAll scoring a requirement against
// resources), reused here for the default {server_wins, client_wins}
// fallback strategy, and internal/merge/merge.go's conflict-message
// list (mergeIssue's "conflict" strings per field), generalized into
// Describe()'s local/remote conflict-marker rendering.
package conflict

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratadb/core/cache"
	"github.com/stratadb/core/errs"
	"github.com/stratadb/core/pending"
	"github.com/stratadb/core/query"
)

// Action is the closed set a resolver may choose, spec §4.11.
type Action int

const (
	KeepLocal Action = iota
	KeepRemote
	MergeAction
	Skip
)

// Resolution is what a configured resolver returns.
type Resolution[T any] struct {
	Action Action
	Merged T // only meaningful when Action == MergeAction
}

// Resolver is the user-pluggable callback awaited under a soft timeout.
type Resolver[T any] func(ctx context.Context, details Details[T]) (Resolution[T], error)

// DefaultStrategy is applied when no resolver is configured, or the
// resolver times out.
type DefaultStrategy int

const (
	ServerWins DefaultStrategy = iota
	ClientWins
)

// Details is spec §3's ConflictDetails<T>, immutable once emitted.
type Details[T any] struct {
	Local             T
	Remote            T
	LocalTS           time.Time
	RemoteTS          time.Time
	ConflictingFields []string
}

// Describe renders a conflict marker block for each conflicting field,
// with a local section and a remote section (no base section), in the
// spirit of internal/merge/merge.go's per-field conflict reporting.
func (d Details[T]) Describe(toRecord func(T) query.Record) string {
	localRec := toRecord(d.Local)
	remoteRec := toRecord(d.Remote)

	var b strings.Builder
	for _, field := range d.ConflictingFields {
		fmt.Fprintf(&b, "<<<<<<< local (%s)\n", d.LocalTS.Format(time.RFC3339))
		fmt.Fprintf(&b, "%s: %v\n", field, localRec[field])
		fmt.Fprintf(&b, "=======\n")
		fmt.Fprintf(&b, "%s: %v\n", field, remoteRec[field])
		fmt.Fprintf(&b, ">>>>>>> remote (%s)\n", d.RemoteTS.Format(time.RFC3339))
	}
	return b.String()
}

// Service detects and resolves conflicts for entity T keyed by ID.
type Service[T any, ID comparable] struct {
	mu              sync.Mutex
	resolver        Resolver[T]
	defaultStrategy DefaultStrategy
	softTimeout     time.Duration
	listeners       []chan Details[T]

	cache   *cache.Cache[T, ID]
	pending *pending.Queue[T, ID]
}

// Config configures a Service.
type Config[T any] struct {
	Resolver        Resolver[T]
	DefaultStrategy DefaultStrategy
	SoftTimeout     time.Duration // default 30s per spec §5
}

// New constructs a Service over the given cache and pending queue.
func New[T any, ID comparable](cfg Config[T], c *cache.Cache[T, ID], p *pending.Queue[T, ID]) *Service[T, ID] {
	timeout := cfg.SoftTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service[T, ID]{
		resolver:        cfg.Resolver,
		defaultStrategy: cfg.DefaultStrategy,
		softTimeout:     timeout,
		cache:           c,
		pending:         p,
	}
}

// Subscribe returns a channel receiving every emitted Details, for
// observability regardless of resolver configuration.
func (s *Service[T, ID]) Subscribe() <-chan Details[T] {
	ch := make(chan Details[T], 16)
	s.mu.Lock()
	s.listeners = append(s.listeners, ch)
	s.mu.Unlock()
	return ch
}

func (s *Service[T, ID]) broadcast(d Details[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		select {
		case ch <- d:
		default:
		}
	}
}

// Resolve is invoked by a write policy when the backend reports
// Conflict, or by the sync driver when a pull yields divergence. id
// and changeID identify the cache entry and pending change this
// conflict is attached to. It applies the outcome to the cache and
// pending queue and returns the final item.
func (s *Service[T, ID]) Resolve(ctx context.Context, id ID, changeID uuid.UUID, details Details[T]) (T, error) {
	s.broadcast(details)

	resolution, usedResolver := s.askResolver(ctx, details)
	if !usedResolver {
		resolution = s.applyDefault(details)
	}

	switch resolution.Action {
	case KeepLocal:
		s.cache.Put(id, details.Local, nil)
		s.pending.Remove(changeID)
		return details.Local, nil

	case KeepRemote:
		s.cache.Put(id, details.Remote, nil)
		s.pending.Remove(changeID)
		return details.Remote, nil

	case MergeAction:
		s.cache.Put(id, resolution.Merged, nil)
		s.pending.Remove(changeID)
		return resolution.Merged, nil

	default: // Skip: stays conflicted until re-attempted.
		conflictKind := errs.Conflict
		s.pending.Update(changeID, pending.Update{LastError: &conflictKind})
		return details.Local, errs.New(errs.Conflict, "conflict left unresolved by skip")
	}
}

// askResolver awaits the configured resolver under the soft timeout.
// Returns ok=false if no resolver is configured or it times out, in
// which case the caller falls back to the default strategy.
func (s *Service[T, ID]) askResolver(ctx context.Context, details Details[T]) (Resolution[T], bool) {
	if s.resolver == nil {
		return Resolution[T]{}, false
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.softTimeout)
	defer cancel()

	type outcome struct {
		res Resolution[T]
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.resolver(timeoutCtx, details)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return Resolution[T]{}, false
		}
		return o.res, true
	case <-timeoutCtx.Done():
		return Resolution[T]{}, false
	}
}

// applyDefault picks between {KeepLocal, KeepRemote} by scoring each
// candidate and sorting descending, the ranked-candidate pattern
// internal/resolver.go's StandardResolver uses for ResolveAll, rather
// than a bare if/else on the configured strategy. The configured
// DefaultStrategy supplies the dominant weight (10), which always
// outweighs the +1 given to the more recently written side, so the
// configured strategy decides the outcome whatever the timestamps; a
// ServerWins service keeps the remote copy even when the local write is
// strictly newer.
func (s *Service[T, ID]) applyDefault(details Details[T]) Resolution[T] {
	type candidate struct {
		action Action
		score  int
	}
	candidates := []candidate{
		{action: KeepLocal},
		{action: KeepRemote},
	}
	for i := range candidates {
		switch {
		case candidates[i].action == KeepLocal && s.defaultStrategy == ClientWins:
			candidates[i].score += 10
		case candidates[i].action == KeepRemote && s.defaultStrategy == ServerWins:
			candidates[i].score += 10
		}
		switch {
		case candidates[i].action == KeepLocal && details.LocalTS.After(details.RemoteTS):
			candidates[i].score++
		case candidates[i].action == KeepRemote && details.RemoteTS.After(details.LocalTS):
			candidates[i].score++
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	return Resolution[T]{Action: candidates[0].action}
}
