package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	"groupchat/pkg/logger"
	"groupchat/pkg/telemetry"
)

// ErrStalled is returned when a stream produces no content before the
// per-read timeout fires.
var ErrStalled = errors.New("sse: stream stalled before any content")

// DefaultReadTimeout bounds the wait for each frame.
const DefaultReadTimeout = 10 * time.Second

type readResult struct {
	line string
	err  error
}

// Decode consumes a frame stream from r, invoking onDelta for every
// content piece, and returns the accumulated text. The wait for each
// frame is bounded by timeout: a timeout before any content arrived is
// an ErrStalled failure, while a timeout after partial content ends the
// stream normally with what was received. Malformed frames are skipped.
func Decode(ctx context.Context, r io.Reader, timeout time.Duration, onDelta func(string)) (string, error) {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	// done lets the reader goroutine bail out of a pending send once
	// Decode has returned, otherwise every stalled stream would strand
	// a goroutine until the process exits
	done := make(chan struct{})
	defer close(done)

	lines := make(chan readResult, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- readResult{line: scanner.Text()}:
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- readResult{err: err}:
			case <-done:
			}
		}
	}()

	var acc strings.Builder
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return acc.String(), ctx.Err()
		case <-timer.C:
			telemetry.StreamTimeouts.Inc()
			if acc.Len() == 0 {
				return "", ErrStalled
			}
			logger.Warn("stream_read_timeout", "accumulated", acc.Len())
			return acc.String(), nil
		case res, ok := <-lines:
			if !ok {
				return acc.String(), nil
			}
			if res.err != nil {
				if acc.Len() == 0 {
					return "", res.err
				}
				logger.Warn("stream_read_error", "error", res.err, "accumulated", acc.Len())
				return acc.String(), nil
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(timeout)

			line := strings.TrimSpace(res.line)
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}
			var f Frame
			if err := json.Unmarshal([]byte(payload), &f); err != nil {
				logger.Warn("frame_skipped", "error", err)
				continue
			}
			if f.Content == "" {
				continue
			}
			acc.WriteString(f.Content)
			if onDelta != nil {
				onDelta(f.Content)
			}
		}
	}
}

// StripNamePrefix removes a leading "名字：" echo when the name is one of
// the given roster names. Models often repeat the speaker label despite
// being told not to.
func StripNamePrefix(s string, names []string) string {
	if len(names) == 0 {
		return s
	}
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			quoted = append(quoted, regexp.QuoteMeta(n))
		}
	}
	if len(quoted) == 0 {
		return s
	}
	re := regexp.MustCompile(`(?i)^(` + strings.Join(quoted, "|") + `)：`)
	return re.ReplaceAllString(s, "")
}
