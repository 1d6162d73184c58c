package testsupport

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-querystate/ql"
	"github.com/goliatone/go-querystate/record"
)

func TestLoadRows(t *testing.T) {
	rows := LoadRows(t, "items.json")
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	items, err := record.Decode[Item](rows)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if items[2].ID != record.NewID("item", "3") {
		t.Errorf("structured id not decoded: %+v", items[2].ID)
	}
}

func TestPaths(t *testing.T) {
	if got := FixturePath("a.json"); got != filepath.Join("testdata", "a.json") {
		t.Errorf("FixturePath() = %q", got)
	}
	if got := GoldenPath("q"); got != filepath.Join("testdata", "golden", "q.golden") {
		t.Errorf("GoldenPath() = %q", got)
	}
}

func TestFakeTransport_Defaults(t *testing.T) {
	f := NewFakeTransport()
	q, err := ql.Parse("SELECT * FROM item; SELECT * FROM user")
	if err != nil {
		t.Fatal(err)
	}

	sets, err := f.Query(context.Background(), q, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sets) != 2 || !sets[0].OK() || len(sets[0].Rows) != 0 {
		t.Errorf("expected two empty OK sets, got %+v", sets)
	}

	call, ok := f.LastCall("Query")
	if !ok || call.Query != "SELECT * FROM item; SELECT * FROM user" {
		t.Errorf("unexpected recorded call: %+v", call)
	}
}

func TestFakeTransport_Hold(t *testing.T) {
	f := NewFakeTransport()
	release := f.Hold()
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = f.Query(context.Background(), ql.Query{}, nil)
	}()

	select {
	case <-done:
		t.Fatal("query returned while held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("query did not resume after release")
	}
}

func TestFakeTransport_HoldRespectsContext(t *testing.T) {
	f := NewFakeTransport()
	defer f.Hold()()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Query(ctx, ql.Query{}, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRecordingSink(t *testing.T) {
	s := NewRecordingSink()
	s.Report(nil)
	s.Report(errors.New("a"))
	s.Trace("Sent", "x")

	if len(s.Errors()) != 1 {
		t.Errorf("expected 1 error, got %v", s.Errors())
	}
	if ops := s.TraceOps(); len(ops) != 1 || ops[0] != "Sent" {
		t.Errorf("unexpected traces: %v", ops)
	}
}
