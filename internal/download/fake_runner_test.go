package download

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
)

// fakeRunner records invocations and replays scripted results.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []Invocation
	results []fakeResult
	// files written next to the output template, keyed by extension
	writeExt  string
	writeSize int
}

type fakeResult struct {
	stdout string
	stderr string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, inv Invocation) (*Output, error) {
	f.mu.Lock()
	idx := len(f.calls)
	f.calls = append(f.calls, inv)
	var res fakeResult
	if idx < len(f.results) {
		res = f.results[idx]
	} else if len(f.results) > 0 {
		res = f.results[len(f.results)-1]
	}
	f.mu.Unlock()

	if res.err == nil && !inv.Probe && f.writeExt != "" {
		path := strings.Replace(inv.OutputTemplate, ".%(ext)s", "."+f.writeExt, 1)
		if err := os.WriteFile(path, make([]byte, f.writeSize), 0o644); err != nil {
			return nil, err
		}
		if inv.OnProgress != nil {
			inv.OnProgress(Progress{Downloaded: int64(f.writeSize) / 2, Total: int64(f.writeSize), Title: "Clip"})
		}
	}
	return &Output{Stdout: res.stdout, Stderr: res.stderr}, res.err
}

func (f *fakeRunner) Calls() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Invocation(nil), f.calls...)
}

var errExit = errors.New("exit status 1")
