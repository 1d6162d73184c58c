package querystate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-querystate/pkg/testsupport"
	"github.com/goliatone/go-querystate/ql"
	"github.com/goliatone/go-querystate/selector"
	"github.com/goliatone/go-querystate/session"
	"github.com/goliatone/go-querystate/transport"
)

var (
	allItems = selector.MustFromText("SELECT * FROM item")
	openOnly = selector.MustFromText("SELECT * FROM item WHERE done = false")
)

func threeItems() []testsupport.Item {
	return []testsupport.Item{
		testsupport.NewItem("1", "milk", false),
		testsupport.NewItem("2", "bread", true),
		testsupport.NewItem("3", "eggs", false),
	}
}

// answer makes fake reply to every query with items in the first result set.
func answer(fake *testsupport.FakeTransport, items []testsupport.Item) {
	fake.QueryFn = func(ctx context.Context, q ql.Query, vars ql.Vars) ([]transport.ResultSet, error) {
		rows := make([]any, len(items))
		for i, it := range items {
			rows[i] = it
		}
		return []transport.ResultSet{testsupport.OK(rows...)}, nil
	}
}

type fixture struct {
	fake    *testsupport.FakeTransport
	sink    *testsupport.RecordingSink
	session *session.Session
	store   *Store[testsupport.Item]
}

// newFixture builds a store over a fake transport. The session is signed in unless
// signedOut is set.
func newFixture(t *testing.T, signedOut bool) *fixture {
	t.Helper()

	f := &fixture{
		fake: testsupport.NewFakeTransport(),
		sink: testsupport.NewRecordingSink(),
	}
	answer(f.fake, threeItems())
	f.session = session.New(f.fake, session.WithSink(f.sink))
	if !signedOut {
		require.NoError(t, f.session.SignIn(context.Background(), "ws://test", transport.Credentials{}))
	}
	f.store = NewStore[testsupport.Item](f.session, WithName(t.Name()))
	t.Cleanup(f.store.Close)
	return f
}

func await(t *testing.T, e *Entry[testsupport.Item]) State[testsupport.Item] {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := e.Await(ctx)
	require.NoError(t, err, "entry did not settle")
	return st
}

func titles(items []testsupport.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}
