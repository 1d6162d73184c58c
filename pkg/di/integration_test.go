package di

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-querystate/internal/sqlstore"
	"github.com/goliatone/go-querystate/pkg/testsupport"
	"github.com/goliatone/go-querystate/ql"
	"github.com/goliatone/go-querystate/querystate"
	"github.com/goliatone/go-querystate/reconcile"
	"github.com/goliatone/go-querystate/scope"
	"github.com/goliatone/go-querystate/selector"
	"github.com/goliatone/go-querystate/transport"
)

// countingTransport counts the queries that reach the record server.
type countingTransport struct {
	transport.Transport
	queries atomic.Int64
}

func (c *countingTransport) Query(ctx context.Context, q ql.Query, vars ql.Vars) ([]transport.ResultSet, error) {
	c.queries.Add(1)
	return c.Transport.Query(ctx, q, vars)
}

type stack struct {
	db        *sqlstore.Store
	server    *countingTransport
	container *Container
	sink      *testsupport.RecordingSink
	store     *querystate.Store[testsupport.Item]
	writer    *reconcile.Writer[testsupport.Item]
}

func newStack(t *testing.T, items ...testsupport.Item) *stack {
	t.Helper()

	db, err := sqlstore.Open(":memory:", sqlstore.WithUser("root", "root"))
	if err != nil {
		t.Fatalf("Failed to open record store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, it := range items {
		if _, err := db.Seed(ctx, "item", it); err != nil {
			t.Fatalf("Failed to seed: %v", err)
		}
	}

	s := &stack{db: db, server: &countingTransport{Transport: db}, sink: testsupport.NewRecordingSink()}
	s.container, err = NewContainerWithDefaults(s.server, WithSink(s.sink))
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	err = s.container.Session().SignIn(ctx, "sqlite://memory", transport.Credentials{
		Username: "root",
		Password: "root",
	})
	if err != nil {
		t.Fatalf("SignIn() failed: %v", err)
	}

	s.store = NewStore[testsupport.Item](s.container, querystate.WithName("items"))
	t.Cleanup(s.store.Close)
	s.writer = NewWriter[testsupport.Item](s.container)
	return s
}

func (s *stack) await(t *testing.T, text string) *querystate.Entry[testsupport.Item] {
	t.Helper()

	e := s.store.Get(selector.MustFromText(text), selector.Parameters{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := e.Await(ctx)
	if err != nil {
		t.Fatalf("Entry did not settle: %v", err)
	}
	if !st.Ready() {
		t.Fatalf("Entry settled as %s: %v", st.Phase, st.Err)
	}
	return e
}

func project(e *querystate.Entry[testsupport.Item]) []querystate.Item[testsupport.Item, testsupport.ItemView] {
	return querystate.Project[testsupport.Item, testsupport.ItemView, bool](e, testsupport.ItemMapping{}, false, nil)
}

// markDone is how a list row handler would write: it only knows its own context.
func markDone(ctx context.Context, w *reconcile.Writer[testsupport.Item]) (*reconcile.Op, error) {
	ref := querystate.SelfRefFrom[testsupport.Item](ctx)
	return w.Update(ctx, ref, map[string]any{"done": true})
}

func TestIntegration_UpdateKeepsMatchingRecord(t *testing.T) {
	s := newStack(t, testsupport.NewItem("1", "milk", false))
	e := s.await(t, "SELECT * FROM item")

	items := project(e)
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].Key != "item:1" {
		t.Errorf("Expected key item:1, got %q", items[0].Key)
	}

	ctx := querystate.WithSelfRef(context.Background(), items[0].Ref)
	op, err := markDone(ctx, s.writer)
	if err != nil {
		t.Fatalf("markDone() failed: %v", err)
	}
	if op.State() != reconcile.StateApplied {
		t.Errorf("Expected Applied, got %s", op.State())
	}

	items = project(e)
	if len(items) != 1 {
		t.Fatalf("Expected the record to stay, got %d items", len(items))
	}
	if !items[0].Value.Done {
		t.Error("Expected the record to be done")
	}
	if errs := s.sink.Errors(); len(errs) != 0 {
		t.Errorf("Expected no reported errors, got %v", errs)
	}
}

func TestIntegration_UpdateDropsRecordLeavingSelection(t *testing.T) {
	s := newStack(t, testsupport.NewItem("1", "milk", false))
	e := s.await(t, "SELECT * FROM item WHERE done = false")
	if n := len(project(e)); n != 1 {
		t.Fatalf("Expected 1 item, got %d", n)
	}

	ctx := querystate.WithSelfRef(context.Background(), project(e)[0].Ref)
	op, err := markDone(ctx, s.writer)
	if err != nil {
		t.Fatalf("markDone() failed: %v", err)
	}
	if op.State() != reconcile.StateDropped {
		t.Errorf("Expected Dropped, got %s", op.State())
	}
	if n := len(project(e)); n != 0 {
		t.Errorf("Expected the record to leave the list, got %d items", n)
	}

	// A fresh entry for the same selection agrees with the local list.
	other := s.await(t, "SELECT * FROM item WHERE done = false LIMIT 5")
	if n := len(other.Read().Records); n != 0 {
		t.Errorf("Expected an empty selection, got %d records", n)
	}
}

func TestIntegration_CreateOnEmptyEntry(t *testing.T) {
	s := newStack(t)
	e := s.await(t, "SELECT * FROM item")
	if n := len(e.Read().Records); n != 0 {
		t.Fatalf("Expected an empty entry, got %d records", n)
	}

	created, op, err := s.writer.Create(context.Background(), "item", map[string]any{"title": "Test", "done": false}, e)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if op.State() != reconcile.StateApplied {
		t.Errorf("Expected Applied, got %s", op.State())
	}

	records := e.Read().Records
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0] != created {
		t.Errorf("Expected the created record %+v, got %+v", created, records[0])
	}
	if records[0].Title != "Test" {
		t.Errorf("Expected title Test, got %q", records[0].Title)
	}
	if records[0].ID.Table != "item" || records[0].ID.Key == "" {
		t.Errorf("Expected an item id, got %v", records[0].ID)
	}
}

func TestIntegration_SelfRefOutsideProjection(t *testing.T) {
	s := newStack(t)

	defer func() {
		r := recover()
		missing, ok := r.(*scope.MissingContextError)
		if !ok {
			t.Fatalf("Expected *scope.MissingContextError, got %v", r)
		}
		if missing.Name != "self reference" {
			t.Errorf("Expected the self reference to be missing, got %q", missing.Name)
		}
	}()
	_, _ = markDone(context.Background(), s.writer)
	t.Fatal("markDone should not return without a self reference")
}

func TestIntegration_ResultCacheSharedAcrossStores(t *testing.T) {
	s := newStack(t, testsupport.NewItem("1", "milk", false))
	s.await(t, "SELECT * FROM item")
	if n := s.server.queries.Load(); n != 1 {
		t.Fatalf("Expected 1 server query, got %d", n)
	}

	// A second store has its own entries but reads through the same result cache.
	other := NewStore[testsupport.Item](s.container)
	defer other.Close()
	e := other.Get(selector.MustFromText("SELECT * FROM item"), selector.Parameters{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := e.Await(ctx); err != nil {
		t.Fatalf("Entry did not settle: %v", err)
	}
	if n := s.server.queries.Load(); n != 1 {
		t.Errorf("Expected the read to be served from the result cache, got %d server queries", n)
	}

	// Writing to the table invalidates the cached read.
	_, op, err := s.writer.Create(context.Background(), "item", map[string]any{"title": "bread"}, nil)
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if !op.Unchanged() {
		t.Error("Expected a create without a target to leave lists unchanged")
	}

	third := NewStore[testsupport.Item](s.container)
	defer third.Close()
	e = third.Get(selector.MustFromText("SELECT * FROM item"), selector.Parameters{})
	st, err := e.Await(ctx)
	if err != nil {
		t.Fatalf("Entry did not settle: %v", err)
	}
	if len(st.Records) != 2 {
		t.Errorf("Expected 2 records, got %d", len(st.Records))
	}
	if n := s.server.queries.Load(); n != 2 {
		t.Errorf("Expected 2 server queries, got %d", n)
	}
}

func TestIntegration_ReloadBypassesResultCache(t *testing.T) {
	s := newStack(t, testsupport.NewItem("1", "milk", false))
	e := s.await(t, "SELECT * FROM item")

	// Changed behind the session's back: nothing invalidates the cached read.
	_, err := s.db.Merge(context.Background(), testsupport.NewItem("1", "", false).ID, map[string]any{"title": "oat milk"})
	if err != nil {
		t.Fatalf("Merge() failed: %v", err)
	}

	e.Reload()
	st := s.await(t, "SELECT * FROM item").Read()
	if len(st.Records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(st.Records))
	}
	if st.Records[0].Title != "oat milk" {
		t.Errorf("Expected the reloaded title, got %q", st.Records[0].Title)
	}
	if n := s.server.queries.Load(); n != 2 {
		t.Errorf("Expected 2 server queries, got %d", n)
	}
}

func TestIntegration_SignInRejected(t *testing.T) {
	db, err := sqlstore.Open(":memory:", sqlstore.WithUser("root", "root"))
	if err != nil {
		t.Fatalf("Failed to open record store: %v", err)
	}
	defer db.Close()

	sink := testsupport.NewRecordingSink()
	container, err := NewContainerWithDefaults(db, WithSink(sink))
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	err = container.Session().SignIn(context.Background(), "sqlite://memory", transport.Credentials{Username: "root", Password: "nope"})
	if !errors.Is(err, sqlstore.ErrAuthentication) {
		t.Fatalf("Expected ErrAuthentication, got %v", err)
	}
	if container.Session().Ready() {
		t.Error("Session should not be ready after a rejected sign-in")
	}

	store := NewStore[testsupport.Item](container)
	defer store.Close()
	e := store.Get(selector.MustFromText("SELECT * FROM item"), selector.Parameters{})
	if phase := e.Read().Phase; phase != querystate.PhaseIdle {
		t.Errorf("Expected no fetch before the session is ready, got %s", phase)
	}
	if n := len(sink.Errors()); n != 1 {
		t.Errorf("Expected 1 reported error, got %d", n)
	}
}
