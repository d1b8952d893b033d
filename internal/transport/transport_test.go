package transport

import (
	"context"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/viktorkelemen/sc-repl-mcp/internal/config"
)

func testConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.ReplyPort = 0 // let the kernel pick during tests
	return cfg
}

func TestLoopbackDispatch(t *testing.T) {
	ctx := context.Background()
	got := make(chan *osc.Message, 1)

	receiver, err := Dial(ctx, testConfig(), map[string]Handler{
		"/test/ping": func(msg *osc.Message) { got <- msg },
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("dial receiver: %v", err)
	}
	defer receiver.Close()

	cfg := testConfig()
	cfg.ScsynthPort = receiver.LocalPort()
	sender, err := Dial(ctx, cfg, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("dial sender: %v", err)
	}
	defer sender.Close()

	if !sender.Send("/test/ping", int32(7), float32(1.5), "hi") {
		t.Fatal("send reported failure")
	}

	select {
	case msg := <-got:
		if msg.Address != "/test/ping" {
			t.Fatalf("address = %q", msg.Address)
		}
		if len(msg.Arguments) != 3 {
			t.Fatalf("arguments = %v", msg.Arguments)
		}
		if n, ok := ToInt64(msg.Arguments[0]); !ok || n != 7 {
			t.Fatalf("arg0 = %v", msg.Arguments[0])
		}
		if f, ok := ToFloat64(msg.Arguments[1]); !ok || f != 1.5 {
			t.Fatalf("arg1 = %v", msg.Arguments[1])
		}
		if s, ok := ToString(msg.Arguments[2]); !ok || s != "hi" {
			t.Fatalf("arg2 = %v", msg.Arguments[2])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message never dispatched")
	}
}

func TestUnregisteredAddressDropped(t *testing.T) {
	ctx := context.Background()
	got := make(chan *osc.Message, 1)

	receiver, err := Dial(ctx, testConfig(), map[string]Handler{
		"/known": func(msg *osc.Message) { got <- msg },
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("dial receiver: %v", err)
	}
	defer receiver.Close()

	cfg := testConfig()
	cfg.ScsynthPort = receiver.LocalPort()
	sender, err := Dial(ctx, cfg, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("dial sender: %v", err)
	}
	defer sender.Close()

	sender.Send("/unknown", int32(1))
	sender.Send("/known", int32(2))

	select {
	case msg := <-got:
		if msg.Address != "/known" {
			t.Fatalf("dispatched %q", msg.Address)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("known message never dispatched")
	}
	select {
	case msg := <-got:
		t.Fatalf("unexpected extra dispatch %q", msg.Address)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendOnNilConn(t *testing.T) {
	var c *Conn
	if c.Send("/test") {
		t.Fatal("nil conn send should fail")
	}
	if c.SendInterp("/test") {
		t.Fatal("nil conn interp send should fail")
	}
}

func TestCloseIdempotent(t *testing.T) {
	c, err := Dial(context.Background(), testConfig(), nil, zap.NewNop())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c.Close()
	c.Close()
}

func TestCoercions(t *testing.T) {
	if _, ok := ToFloat64("nope"); ok {
		t.Fatal("string coerced to float")
	}
	if n, ok := ToInt64(float32(3)); !ok || n != 3 {
		t.Fatalf("float32 to int = %d %v", n, ok)
	}
	if s, ok := ToString(nil); !ok || s != "" {
		t.Fatalf("nil to string = %q %v", s, ok)
	}
}
