package subprocess

import (
	"context"
	"fmt"
	"sync"
)

// FakeRunner is a scriptable Runner for tests across the mapreduce
// packages (worktree, agent, coordinator): register a Result or error
// per command name, or fall back to a default handler.
type FakeRunner struct {
	mu       sync.Mutex
	Calls    []Call
	Handlers map[string]func(call Call) (Result, error)
	Default  func(call Call) (Result, error)
}

// Call records one invocation for assertions.
type Call struct {
	Dir  string
	Env  []string
	Name string
	Args []string
}

// NewFakeRunner returns a FakeRunner that succeeds with empty output for
// any command unless a handler is registered.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Handlers: make(map[string]func(Call) (Result, error))}
}

// On registers a handler keyed by "name arg0" (e.g. "git worktree" or
// "sh -c") or by the bare command name; a call matches only on exactly
// one of those two keys, "name arg0" first.
func (f *FakeRunner) On(key string, handler func(Call) (Result, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Handlers[key] = handler
}

func (f *FakeRunner) Run(_ context.Context, dir string, env []string, name string, args ...string) (Result, error) {
	f.mu.Lock()
	call := Call{Dir: dir, Env: env, Name: name, Args: append([]string(nil), args...)}
	f.Calls = append(f.Calls, call)
	handlers := f.Handlers
	def := f.Default
	f.mu.Unlock()

	key := name
	if len(args) > 0 {
		key = fmt.Sprintf("%s %s", name, args[0])
	}
	if h, ok := handlers[key]; ok {
		return h(call)
	}
	if h, ok := handlers[name]; ok {
		return h(call)
	}
	if def != nil {
		return def(call)
	}
	return Result{ExitCode: 0}, nil
}
