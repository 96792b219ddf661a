package testjson

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

type scanResult struct {
	line []byte
	err  error
}

// Stream decodes go test -json events line by line and calls fn for each.
// It stops at EOF or when ctx is done, and returns the number of lines that
// were not valid JSON.
//
// The scanner runs in its own goroutine. On cancellation Stream closes r if
// it is an io.Closer; otherwise the caller must close the underlying reader
// to release that goroutine.
func Stream(ctx context.Context, r io.Reader, fn ProcessFunc) (malformed int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lines := make(chan scanResult)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			cp := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- scanResult{line: cp}:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- scanResult{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if c, ok := r.(io.Closer); ok {
				_ = c.Close()
			}
			return malformed, ctx.Err()
		case res, ok := <-lines:
			if !ok {
				return malformed, nil
			}
			if res.err != nil {
				return malformed, fmt.Errorf("scanning test output: %w", res.err)
			}
			if len(res.line) == 0 {
				continue
			}
			var event TestEvent
			if err := json.Unmarshal(res.line, &event); err != nil {
				malformed++
				continue
			}
			fn(event)
		}
	}
}
