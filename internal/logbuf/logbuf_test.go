package logbuf_test

import (
	"fmt"
	"testing"

	"github.com/viktorkelemen/sc-repl-mcp/internal/logbuf"
	"github.com/viktorkelemen/sc-repl-mcp/internal/model"
)

func TestCapacityEvictsOldest(t *testing.T) {
	b := logbuf.New(3)
	for i := 0; i < 5; i++ {
		b.Append(model.LogInfo, fmt.Sprintf("msg-%d", i))
	}
	if b.Len() != 3 {
		t.Fatalf("len = %d, want 3", b.Len())
	}
	got := b.Recent(0, "")
	if got[0].Message != "msg-2" || got[2].Message != "msg-4" {
		t.Fatalf("unexpected window: %v .. %v", got[0].Message, got[2].Message)
	}
}

func TestRecentFiltersByCategory(t *testing.T) {
	b := logbuf.New(10)
	b.Append(model.LogFail, "bad synthdef")
	b.Append(model.LogDone, "/notify complete")
	b.Append(model.LogFail, "node not found")

	fails := b.Recent(0, model.LogFail)
	if len(fails) != 2 {
		t.Fatalf("fail count = %d, want 2", len(fails))
	}
	if fails[0].Message != "bad synthdef" || fails[1].Message != "node not found" {
		t.Fatalf("wrong order or contents: %+v", fails)
	}
}

func TestRecentLimitKeepsNewest(t *testing.T) {
	b := logbuf.New(10)
	for i := 0; i < 4; i++ {
		b.Append(model.LogNode, fmt.Sprintf("node-%d", i))
	}
	got := b.Recent(2, "")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Message != "node-2" || got[1].Message != "node-3" {
		t.Fatalf("limit kept wrong entries: %+v", got)
	}
}

func TestClear(t *testing.T) {
	b := logbuf.New(10)
	b.Append(model.LogInfo, "hello")
	b.Clear()
	if b.Len() != 0 {
		t.Fatalf("len after clear = %d", b.Len())
	}
	if got := b.Recent(0, ""); len(got) != 0 {
		t.Fatalf("recent after clear = %+v", got)
	}
}

func TestZeroCapacityUsesDefault(t *testing.T) {
	b := logbuf.New(0)
	for i := 0; i < logbuf.DefaultCapacity+10; i++ {
		b.Append(model.LogInfo, "x")
	}
	if b.Len() != logbuf.DefaultCapacity {
		t.Fatalf("len = %d, want %d", b.Len(), logbuf.DefaultCapacity)
	}
}
