package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

const pollInterval = 250 * time.Millisecond

// TailOptions selects what Tail reads. A negative Offset reads the last
// Limit matching lines; otherwise reading resumes at Offset.
type TailOptions struct {
	Offset int64
	Limit  int
	// Follow with a positive Wait polls for up to Wait when nothing new matched.
	Follow bool
	Wait   time.Duration
	Filter Filter
}

// TailResult carries the lines read and the offset to resume from.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Tail reads path per opts. A missing file yields no lines and offset zero.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	res, err := readOnce(path, opts)
	if err != nil || len(res.Lines) > 0 || !opts.Follow || opts.Wait <= 0 {
		return res, err
	}

	deadline := time.Now().Add(opts.Wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-ticker.C:
		}
		next, err := readOnce(path, TailOptions{Offset: res.Offset, Filter: opts.Filter})
		if err != nil {
			return res, err
		}
		res = next
		if len(res.Lines) > 0 {
			break
		}
	}
	return res, nil
}

func readOnce(path string, opts TailOptions) (TailResult, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return TailResult{}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return TailResult{}, fmt.Errorf("log path %q is a directory", path)
	}

	limit := -1
	start := opts.Offset
	if start < 0 {
		if opts.Limit <= 0 {
			return TailResult{Offset: info.Size()}, nil
		}
		limit, start = opts.Limit, 0
	}
	// A truncated or rotated file restarts from its end.
	if start > info.Size() {
		start = info.Size()
	}
	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return TailResult{}, fmt.Errorf("seek log file: %w", err)
	}

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !opts.Filter.Match(line) {
			continue
		}
		lines = append(lines, line)
		if limit > 0 && len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return TailResult{}, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return TailResult{}, fmt.Errorf("determine log offset: %w", err)
	}
	return TailResult{Lines: lines, Offset: offset}, nil
}
