package conflict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb/core/cache"
	"github.com/stratadb/core/errs"
	"github.com/stratadb/core/pending"
	"github.com/stratadb/core/query"
)

type widget struct {
	ID   string
	Name string
}

func toRecord(w widget) query.Record { return query.Record{"id": w.ID, "name": w.Name} }

func newDetails() Details[widget] {
	return Details[widget]{
		Local:             widget{ID: "w1", Name: "local"},
		Remote:            widget{ID: "w1", Name: "remote"},
		LocalTS:           time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		RemoteTS:          time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		ConflictingFields: []string{"name"},
	}
}

func TestSubscribeReceivesEmittedConflictRegardlessOfResolver(t *testing.T) {
	c := cache.New[widget, string](nil)
	p := pending.New[widget, string](nil)
	svc := New(Config[widget]{}, c, p)

	ch := svc.Subscribe()
	change := p.Add("w1", widget{ID: "w1", Name: "local"}, pending.Update, &widget{ID: "w1", Name: "before"})

	_, err := svc.Resolve(context.Background(), "w1", change.ChangeID, newDetails())
	require.NoError(t, err)

	select {
	case d := <-ch:
		assert.Equal(t, "local", d.Local.Name)
		assert.Equal(t, "remote", d.Remote.Name)
	default:
		t.Fatal("expected a conflict to be broadcast on the conflicts stream")
	}
}

func TestDefaultStrategyServerWinsKeepsRemote(t *testing.T) {
	c := cache.New[widget, string](nil)
	p := pending.New[widget, string](nil)
	svc := New(Config[widget]{DefaultStrategy: ServerWins}, c, p)

	change := p.Add("w1", widget{ID: "w1", Name: "local"}, pending.Update, &widget{ID: "w1", Name: "before"})
	item, err := svc.Resolve(context.Background(), "w1", change.ChangeID, newDetails())
	require.NoError(t, err)
	assert.Equal(t, "remote", item.Name)

	entry, ok := c.Get("w1")
	require.True(t, ok)
	assert.Equal(t, "remote", entry.Item.Name)
	assert.Equal(t, 0, p.Len(), "resolved conflict must drop the pending change")
}

func TestDefaultStrategyClientWinsKeepsLocal(t *testing.T) {
	c := cache.New[widget, string](nil)
	p := pending.New[widget, string](nil)
	svc := New(Config[widget]{DefaultStrategy: ClientWins}, c, p)

	change := p.Add("w1", widget{ID: "w1", Name: "local"}, pending.Update, &widget{ID: "w1", Name: "before"})
	item, err := svc.Resolve(context.Background(), "w1", change.ChangeID, newDetails())
	require.NoError(t, err)
	assert.Equal(t, "local", item.Name)
}

func TestConfiguredResolverKeepRemote(t *testing.T) {
	c := cache.New[widget, string](nil)
	p := pending.New[widget, string](nil)
	resolver := func(ctx context.Context, d Details[widget]) (Resolution[widget], error) {
		return Resolution[widget]{Action: KeepRemote}, nil
	}
	svc := New(Config[widget]{Resolver: resolver}, c, p)

	change := p.Add("w1", widget{ID: "w1", Name: "local"}, pending.Update, &widget{ID: "w1", Name: "before"})
	item, err := svc.Resolve(context.Background(), "w1", change.ChangeID, newDetails())
	require.NoError(t, err)
	assert.Equal(t, "remote", item.Name)
}

func TestConfiguredResolverMergeAppliesMergedValue(t *testing.T) {
	c := cache.New[widget, string](nil)
	p := pending.New[widget, string](nil)
	merged := widget{ID: "w1", Name: "merged"}
	resolver := func(ctx context.Context, d Details[widget]) (Resolution[widget], error) {
		return Resolution[widget]{Action: MergeAction, Merged: merged}, nil
	}
	svc := New(Config[widget]{Resolver: resolver}, c, p)

	change := p.Add("w1", widget{ID: "w1", Name: "local"}, pending.Update, &widget{ID: "w1", Name: "before"})
	item, err := svc.Resolve(context.Background(), "w1", change.ChangeID, newDetails())
	require.NoError(t, err)
	assert.Equal(t, "merged", item.Name)
}

func TestConfiguredResolverSkipLeavesItemConflicted(t *testing.T) {
	c := cache.New[widget, string](nil)
	p := pending.New[widget, string](nil)
	resolver := func(ctx context.Context, d Details[widget]) (Resolution[widget], error) {
		return Resolution[widget]{Action: Skip}, nil
	}
	svc := New(Config[widget]{Resolver: resolver}, c, p)

	c.Put("w1", widget{ID: "w1", Name: "local"}, nil)
	change := p.Add("w1", widget{ID: "w1", Name: "local"}, pending.Update, &widget{ID: "w1", Name: "before"})

	_, err := svc.Resolve(context.Background(), "w1", change.ChangeID, newDetails())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Conflict))

	entry, ok := c.Get("w1")
	require.True(t, ok)
	assert.Equal(t, "local", entry.Item.Name, "skip must retain the local cache value")

	queued, ok := p.Get(change.ChangeID)
	require.True(t, ok, "skip must leave the pending change queued")
	require.NotNil(t, queued.LastError)
	assert.Equal(t, errs.Conflict, *queued.LastError)
}

func TestResolverTimeoutFallsBackToDefaultStrategy(t *testing.T) {
	c := cache.New[widget, string](nil)
	p := pending.New[widget, string](nil)
	resolver := func(ctx context.Context, d Details[widget]) (Resolution[widget], error) {
		<-ctx.Done()
		return Resolution[widget]{}, ctx.Err()
	}
	svc := New(Config[widget]{Resolver: resolver, DefaultStrategy: ServerWins, SoftTimeout: 10 * time.Millisecond}, c, p)

	change := p.Add("w1", widget{ID: "w1", Name: "local"}, pending.Update, &widget{ID: "w1", Name: "before"})
	item, err := svc.Resolve(context.Background(), "w1", change.ChangeID, newDetails())
	require.NoError(t, err)
	assert.Equal(t, "remote", item.Name, "a timed-out resolver must fall back to the default strategy")
}

func TestResolverErrorFallsBackToDefaultStrategy(t *testing.T) {
	c := cache.New[widget, string](nil)
	p := pending.New[widget, string](nil)
	resolver := func(ctx context.Context, d Details[widget]) (Resolution[widget], error) {
		return Resolution[widget]{}, assert.AnError
	}
	svc := New(Config[widget]{Resolver: resolver, DefaultStrategy: ClientWins}, c, p)

	change := p.Add("w1", widget{ID: "w1", Name: "local"}, pending.Update, &widget{ID: "w1", Name: "before"})
	item, err := svc.Resolve(context.Background(), "w1", change.ChangeID, newDetails())
	require.NoError(t, err)
	assert.Equal(t, "local", item.Name)
}

func TestDescribeRendersThreeWayMarkersPerField(t *testing.T) {
	d := newDetails()
	out := d.Describe(toRecord)
	assert.Contains(t, out, "<<<<<<< local")
	assert.Contains(t, out, "=======")
	assert.Contains(t, out, ">>>>>>> remote")
	assert.Contains(t, out, "name: local")
	assert.Contains(t, out, "name: remote")
}
