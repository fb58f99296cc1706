package sse

import (
	"context"
	"errors"
	"io"
	"runtime"
	"strings"
	"testing"
	"time"
)

func frames(contents ...string) string {
	var b strings.Builder
	for _, c := range contents {
		b.WriteString(`data: {"content":"` + c + `"}` + "\n\n")
	}
	return b.String()
}

func TestDecodeAccumulates(t *testing.T) {
	r := strings.NewReader(frames("你", "好", "！"))
	var deltas []string
	got, err := Decode(context.Background(), r, time.Second, func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "你好！" {
		t.Fatalf("got %q, want 你好！", got)
	}
	if len(deltas) != 3 {
		t.Fatalf("got %d deltas, want 3", len(deltas))
	}
}

func TestDecodeSkipsMalformedFrames(t *testing.T) {
	raw := "data: {not json}\n\n" + frames("ok") + "data: [DONE]\n\n"
	got, err := Decode(context.Background(), strings.NewReader(raw), time.Second, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "ok" {
		t.Fatalf("got %q, want ok", got)
	}
}

func TestDecodeStallWithoutContent(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	_, err := Decode(context.Background(), pr, 30*time.Millisecond, nil)
	if !errors.Is(err, ErrStalled) {
		t.Fatalf("got err %v, want ErrStalled", err)
	}
}

func TestDecodeStallAfterPartialContent(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		pw.Write([]byte(frames("部分")))
		// keep the pipe open so the decoder has to rely on its timeout
	}()
	got, err := Decode(context.Background(), pr, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "部分" {
		t.Fatalf("got %q, want 部分", got)
	}
	pw.Close()
}

func TestDecodeStalledStreamLeavesNoReaderBehind(t *testing.T) {
	before := runtime.NumGoroutine()

	const n = 20
	for i := 0; i < n; i++ {
		pr, pw := io.Pipe()
		if _, err := Decode(context.Background(), pr, 10*time.Millisecond, nil); !errors.Is(err, ErrStalled) {
			t.Fatalf("got err %v, want ErrStalled", err)
		}
		// the caller closes the body after a stall, as the
		// orchestrator does
		pr.Close()
		pw.Close()
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before+2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("reader goroutines leaked: before=%d after=%d", before, runtime.NumGoroutine())
}

func TestDecodeCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Decode(ctx, pr, time.Second, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got err %v, want context.Canceled", err)
	}
}

func TestStripNamePrefix(t *testing.T) {
	names := []string{"悟空", "八戒"}
	cases := []struct{ in, want string }{
		{"悟空：俺来也", "俺来也"},
		{"八戒：吃了吗", "吃了吗"},
		{"沙僧：我在", "沙僧：我在"},
		{"没有前缀", "没有前缀"},
	}
	for _, c := range cases {
		if got := StripNamePrefix(c.in, names); got != c.want {
			t.Fatalf("StripNamePrefix(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
