// Command prodigy runs MapReduce workflows: spawn a bounded pool of
// agents over a data pipeline's work items, each isolated in its own
// git worktree, with checkpointing, a dead-letter queue, and resume
// after interruption.
//
// Usage:
//
//	prodigy run workflow.yml -y
//	prodigy resume <session_id>
//	prodigy dlq list <job_id>
//	prodigy dlq reprocess <job_id> --filter "attempts>=2"
//	prodigy events tail <job_id>
//
// Grounded on cmd/hector/main.go's Kong CLI struct and the
// commands/executor/config_loader/logger split it uses to keep flag
// parsing, process wiring, and command bodies in separate files.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// CLI is the root Kong command set.
type CLI struct {
	Run    RunCmd    `cmd:"" help:"Execute a workflow."`
	Resume ResumeCmd `cmd:"" help:"Resume a previously interrupted workflow."`
	Dlq    DlqCmd    `cmd:"" help:"Inspect or reprocess the dead-letter queue."`
	Events EventsCmd `cmd:"" help:"Inspect a job's event log."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat string `help:"Log format (simple, verbose, json)." default:"simple"`
}

func main() {
	os.Exit(run())
}

func run() int {
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("prodigy"),
		kong.Description("Run MapReduce workflows with checkpointing, worktree isolation, and resume."))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitGeneric
	}

	ctx, err := parser.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitArgs
	}

	if _, err := initLogger(cli.LogLevel, cli.LogFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitConfig
	}

	if err := ctx.Run(&cli); err != nil {
		return reportAndClassify(err)
	}
	return exitSuccess
}

// Exit codes per the CLI's documented contract: 0 success; 1 generic;
// 2 args; 3 config; 5 execution; 130 interrupted.
const (
	exitSuccess     = 0
	exitGeneric     = 1
	exitArgs        = 2
	exitConfig      = 3
	exitExecution   = 5
	exitInterrupted = 130
)

// reportAndClassify prints the error-handling design's user-visible
// shape (kind, one-line summary, recovery hint) and returns the
// matching exit code.
func reportAndClassify(err error) int {
	kind, code, hint := classify(err)
	fmt.Fprintf(os.Stderr, "error (%s): %s\n", kind, err)
	if hint != "" {
		fmt.Fprintf(os.Stderr, "  hint: %s\n", hint)
	}
	return code
}

func classify(err error) (kind string, code int, hint string) {
	switch {
	case errors.Is(err, mrerrors.ErrCancelled):
		return "cancellation", exitInterrupted, "re-run `prodigy resume <session_id>` to continue"
	case errors.Is(err, mrerrors.ErrConfiguration):
		return "configuration", exitConfig, "check the workflow file against the documented schema"
	case errors.Is(err, mrerrors.ErrWorkflowChanged):
		return "workflow drift", exitConfig, "the workflow file changed since the checkpoint was written; resolve manually"
	case errors.Is(err, mrerrors.ErrNotFound):
		return "not found", exitConfig, ""
	case errors.Is(err, mrerrors.ErrCorrupted):
		return "checkpoint integrity", exitConfig, "the checkpoint failed its integrity check and will not be loaded"
	case errors.Is(err, mrerrors.ErrTimeout):
		return "timeout", exitExecution, "increase the agent timeout or reduce max_parallel"
	case errors.Is(err, mrerrors.ErrResourceExhaustion):
		return "resource exhaustion", exitExecution, "reduce max_parallel or increase available memory/file descriptors"
	case errors.Is(err, mrerrors.ErrMergeConflict):
		return "worktree conflict", exitExecution, "resolve the conflict in the left-over worktree and re-run merge manually"
	default:
		return "execution", exitExecution, ""
	}
}
