// Package pool is the bounded-concurrency worker pool that drives the
// map phase: it runs each work item through an AgentRunner inside at
// most MaxParallel concurrent slots, and applies the retry/backoff/
// dead-letter policy from spec §4.8 when an agent fails or times out.
//
// Grounded on the teacher's pkg/agent/workflowagent/parallel.go, which
// runs a fixed set of sub-agents once via errgroup.WithContext plus a
// results channel and a done channel. This package generalizes that
// shape from "N branches, run once" to "each item is an independent
// chain of attempts, gated by a golang.org/x/sync/semaphore.Weighted so
// at most MaxParallel attempts are ever executing, with a backoff sleep
// between attempts that holds no slot." Retries recurse into new
// goroutines rather than a fixed errgroup set, so a plain
// sync.WaitGroup tracks completion instead.
package pool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/prodigy/internal/mapreduce/agent"
	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// AgentRunner executes one work item and returns its terminal result.
// Implementations are expected to honor ctx cancellation and to return
// promptly once ctx is done (the agent executor's per-step ctx.Err()
// check satisfies this).
type AgentRunner interface {
	RunItem(ctx context.Context, item model.WorkItem) (model.AgentResult, error)
}

// AgentRunnerFunc adapts a plain function to AgentRunner.
type AgentRunnerFunc func(ctx context.Context, item model.WorkItem) (model.AgentResult, error)

func (f AgentRunnerFunc) RunItem(ctx context.Context, item model.WorkItem) (model.AgentResult, error) {
	return f(ctx, item)
}

// Hooks lets the coordinator observe pool activity for checkpoint and
// event-log writes. Run serializes every call behind one mutex, so
// implementations never need their own locking — this is the "state
// lock" spec §4.8 describes checkpoint/DLQ writes as serialized through.
type Hooks struct {
	OnDispatch       func(item model.WorkItem, agentID string, attempt int)
	OnComplete       func(item model.WorkItem, result model.AgentResult)
	OnRetryScheduled func(item model.WorkItem, attempt int, delay time.Duration, reason string)
	OnDeadLettered   func(item model.WorkItem, result model.AgentResult)
}

// BackoffBase holds the three base delays spec §4.8 names; the actual
// delay is base * 2^min(attempt, 5).
type BackoffBase struct {
	Normal             time.Duration // 10s
	AgentTimeout       time.Duration // 30s
	ResourceExhaustion time.Duration // 60s
}

// DefaultBackoffBase returns the spec's literal defaults.
func DefaultBackoffBase() BackoffBase {
	return BackoffBase{
		Normal:             10 * time.Second,
		AgentTimeout:       30 * time.Second,
		ResourceExhaustion: 60 * time.Second,
	}
}

// Config configures a Pool.
type Config struct {
	MaxParallel  int
	AgentTimeout time.Duration // 0 means no per-agent timeout
	RetryBudget  int           // max attempts per item before dead-lettering
	Backoff      BackoffBase

	// Now and Sleep are injected for deterministic tests; Run uses
	// time.Now/a real timer when left nil.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 1
	}
	if c.RetryBudget <= 0 {
		c.RetryBudget = 1
	}
	if c.Backoff == (BackoffBase{}) {
		c.Backoff = DefaultBackoffBase()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = sleepCtx
	}
	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pool runs work items with bounded concurrency and retry/backoff.
type Pool struct {
	cfg    Config
	runner AgentRunner
	hooks  Hooks
}

// New builds a Pool.
func New(cfg Config, runner AgentRunner, hooks Hooks) *Pool {
	return &Pool{cfg: cfg.withDefaults(), runner: runner, hooks: hooks}
}

// OutcomeKind is the final disposition of one item after Run returns.
type OutcomeKind string

const (
	OutcomeCompleted    OutcomeKind = "completed"
	OutcomeDeadLettered OutcomeKind = "dead_lettered"
	OutcomeRequeued     OutcomeKind = "requeued" // cancelled before exhausting retries; belongs back in Pending
)

// Outcome pairs a work item with how the pool finished with it.
type Outcome struct {
	Item     model.WorkItem
	Result   model.AgentResult
	Kind     OutcomeKind
	Attempts int // number of attempts made, 1-indexed
}

// Run drives every item in items to a terminal Outcome: Completed,
// DeadLettered, or (only when ctx is cancelled) Requeued. It returns
// once every item has reached one of those three states. The
// semaphore.Weighted slot is the only thing bounding concurrency: items
// dispatch in pipeline order and a backoff sleep between attempts holds
// no slot, so other items' attempts are free to run while one item is
// waiting out its delay.
func (p *Pool) Run(ctx context.Context, items []model.WorkItem) ([]Outcome, error) {
	sem := semaphore.NewWeighted(int64(p.cfg.MaxParallel))
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		outcomes = make([]Outcome, 0, len(items))
	)

	record := func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}

	var runAttempt func(item model.WorkItem, attempt int)
	runAttempt = func(item model.WorkItem, attempt int) {
		defer wg.Done()

		if err := sem.Acquire(ctx, 1); err != nil {
			record(Outcome{Item: item, Kind: OutcomeRequeued, Attempts: attempt})
			return
		}
		defer sem.Release(1)

		agentID := fmt.Sprintf("agent-%s-%d", item.ID, attempt)
		mu.Lock()
		if p.hooks.OnDispatch != nil {
			p.hooks.OnDispatch(item, agentID, attempt)
		}
		mu.Unlock()

		runCtx := ctx
		cancel := func() {}
		if p.cfg.AgentTimeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, p.cfg.AgentTimeout)
		}
		result, err := p.runner.RunItem(runCtx, item)
		cancel()
		if err != nil && result.Status == "" {
			result.Status = model.AgentFailed
			result.Error = err.Error()
		}
		if p.cfg.AgentTimeout > 0 && runCtx.Err() != nil && ctx.Err() == nil {
			result.Status = model.AgentTimeout
			if result.Error == "" {
				result.Error = "agent exceeded agent_timeout_secs"
			}
		}

		mu.Lock()
		if p.hooks.OnComplete != nil {
			p.hooks.OnComplete(item, result)
		}
		mu.Unlock()

		switch result.Status {
		case model.AgentSuccess:
			record(Outcome{Item: item, Result: result, Kind: OutcomeCompleted, Attempts: attempt + 1})
			return
		case model.AgentCancelled:
			// Cancellation itself isn't a failure, so it doesn't consume
			// retry budget — except when this was already the item's
			// last allowed attempt, in which case it was headed to the
			// DLQ anyway and cancellation shouldn't rescue it back to
			// Pending (spec §4.8).
			if attempt+1 >= p.cfg.RetryBudget {
				mu.Lock()
				if p.hooks.OnDeadLettered != nil {
					p.hooks.OnDeadLettered(item, result)
				}
				mu.Unlock()
				record(Outcome{Item: item, Result: result, Kind: OutcomeDeadLettered, Attempts: attempt + 1})
				return
			}
			record(Outcome{Item: item, Result: result, Kind: OutcomeRequeued, Attempts: attempt + 1})
			return
		}

		nextAttempt := attempt + 1
		if nextAttempt >= p.cfg.RetryBudget || !isRetryable(result) {
			mu.Lock()
			if p.hooks.OnDeadLettered != nil {
				p.hooks.OnDeadLettered(item, result)
			}
			mu.Unlock()
			record(Outcome{Item: item, Result: result, Kind: OutcomeDeadLettered, Attempts: attempt + 1})
			return
		}

		delay := backoffDelay(p.cfg.Backoff, result, nextAttempt)
		mu.Lock()
		if p.hooks.OnRetryScheduled != nil {
			p.hooks.OnRetryScheduled(item, nextAttempt, delay, result.Error)
		}
		mu.Unlock()

		wg.Add(1)
		go func() {
			if err := p.cfg.Sleep(ctx, delay); err != nil {
				defer wg.Done()
				record(Outcome{Item: item, Result: result, Kind: OutcomeRequeued, Attempts: nextAttempt})
				return
			}
			runAttempt(item, nextAttempt)
		}()
	}

	for _, item := range items {
		wg.Add(1)
		go runAttempt(item, 0)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return outcomes, ctx.Err()
	}
	return outcomes, nil
}

// isRetryable reports whether result's status is one spec §4.8 treats
// as retry-eligible at all, and, for Failed results, whether the error
// text itself names a transient condition (agent.IsTransient) rather
// than a permanent one. Success never reaches this branch and
// Cancelled is handled separately above. Timeouts are always retried;
// failures are only retried when IsTransient matches, everything else
// dead-letters on its first failure.
func isRetryable(result model.AgentResult) bool {
	switch result.Status {
	case model.AgentTimeout:
		return true
	case model.AgentFailed:
		return agent.IsTransient(result.Error)
	default:
		return false
	}
}

// backoffDelay computes base*2^min(attempt,5) per spec §4.8, selecting
// base by failure kind: agent timeouts use the timeout base, failures
// whose message names resource exhaustion (RunItem implementations
// report this by wrapping mrerrors.ErrResourceExhaustion and letting
// its text reach AgentResult.Error) use the heaviest base, everything
// else uses the normal base.
func backoffDelay(b BackoffBase, result model.AgentResult, attempt int) time.Duration {
	base := b.Normal
	switch {
	case result.Status == model.AgentTimeout:
		base = b.AgentTimeout
	case strings.Contains(result.Error, mrerrors.ErrResourceExhaustion.Error()):
		base = b.ResourceExhaustion
	}
	exp := attempt
	if exp > 5 {
		exp = 5
	}
	return base << uint(exp)
}
