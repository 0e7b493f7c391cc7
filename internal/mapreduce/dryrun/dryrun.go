// Package dryrun statically validates a workflow without running any
// agent: it checks the input document parses, previews the item count
// a pipeline.Config would produce, flags obviously dangerous shell
// commands, extracts every variable reference for a quick sanity read,
// and produces a rough resource estimate for the map phase.
//
// Grounded on original_source/src/cook/execution/mapreduce/dry_run's
// validator/estimator/preview split (input_validator, command_validator,
// resource_estimator, variable_processor) and on the teacher's
// pkg/config/strict_validator.go for the error-accumulating Report
// shape (collect every issue, never stop at the first).
package dryrun

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kadirpekel/prodigy/internal/mapreduce/agent"
	"github.com/kadirpekel/prodigy/internal/mapreduce/coordinator"
	"github.com/kadirpekel/prodigy/internal/mapreduce/pipeline"
	"github.com/kadirpekel/prodigy/internal/mapreduce/variables"
)

// Severity mirrors the teacher's error/warning split: an error means
// the workflow cannot run as written, a warning flags something
// suspicious that might still be intentional.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one thing the validator found, tagged with where it found
// it so a report reader can jump straight to the offending command.
type Issue struct {
	Severity Severity
	Phase    string // "setup", "map.agent_template", "map.input", "reduce"
	Index    int
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("[%s] %s[%d]: %s", i.Severity, i.Phase, i.Index, i.Message)
}

// ResourceEstimate is a rough sizing of what the map phase will need,
// scaled off MaxParallel and the item count — never a guarantee, just
// enough for an operator to sanity-check before committing a large run.
type ResourceEstimate struct {
	WorktreeCount  int
	MemoryUsageMB  int
	DiskUsageMB    int
	CheckpointMB   int
}

// Report is the complete result of validating one workflow against one
// input document.
type Report struct {
	Issues              []Issue
	ItemCountEstimate    int
	VariableReferences   []string
	ItemPreview          []map[string]any // first few decoded work items, for a quick sanity read
	Resources            ResourceEstimate
}

// Valid reports whether the workflow can run as written (warnings don't
// block a run; errors do).
func (r Report) Valid() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			return false
		}
	}
	return true
}

// dangerousPatterns are shell substrings that almost certainly indicate
// a destructive mistake rather than intended behavior. This is a
// best-effort heuristic, not a sandbox: it never blocks a run on its
// own, only flags an error-severity issue a caller can choose to heed.
var dangerousPatterns = []string{
	"rm -rf /",
	"rm -rf /*",
	"rm -fr /",
	"> /dev/sda",
	"mkfs.",
	"dd if=/dev/zero of=/dev/sd",
	":(){ :|:& };:",
	"chmod -R 777 /",
}

// Validate runs every check against spec and inputData and estimates
// resources from maxParallel and the number of extracted items.
func Validate(spec coordinator.WorkflowSpec, inputData []byte, maxParallel int) (Report, error) {
	report := Report{}

	validateCommands("setup", commandsFromSetup(spec.Setup), &report)
	validateAgentSteps("map.agent_template", spec.AgentSteps, &report)
	validateCommands("reduce", commandsFromSetup(spec.Reduce), &report)

	p, err := pipeline.Compile(spec.MapPipeline)
	if err != nil {
		report.Issues = append(report.Issues, Issue{Severity: SeverityError, Phase: "map.input", Message: fmt.Sprintf("pipeline config: %s", err)})
		return report, nil
	}

	doc := inputData
	if len(doc) == 0 {
		doc = spec.MapInputData
	}
	if len(doc) == 0 {
		report.Issues = append(report.Issues, Issue{Severity: SeverityError, Phase: "map.input", Message: "no input document supplied"})
		return report, nil
	}
	if !json.Valid(doc) {
		report.Issues = append(report.Issues, Issue{Severity: SeverityError, Phase: "map.input", Message: "input document is not valid JSON"})
		return report, nil
	}

	items, err := p.Run(doc)
	if err != nil {
		report.Issues = append(report.Issues, Issue{Severity: SeverityError, Phase: "map.input", Message: fmt.Sprintf("pipeline run: %s", err)})
		return report, nil
	}
	report.ItemCountEstimate = len(items)

	preview := items
	if len(preview) > 3 {
		preview = preview[:3]
	}
	for _, item := range preview {
		var decoded map[string]any
		if err := json.Unmarshal(item.Data, &decoded); err == nil {
			report.ItemPreview = append(report.ItemPreview, decoded)
		}
	}

	report.Resources = estimateResources(maxParallel, len(items))
	return report, nil
}

// internalCommand adapts coordinator.Command to the shape
// validateCommands checks; agent steps go through validateAgentSteps.
type internalCommand struct {
	Name string
	Text string
}

func commandsFromSetup(cmds []coordinator.Command) []internalCommand {
	out := make([]internalCommand, len(cmds))
	for i, c := range cmds {
		out[i] = internalCommand{Name: c.Name, Text: c.Shell}
	}
	return out
}

func validateCommands(phase string, cmds []internalCommand, report *Report) {
	for i, c := range cmds {
		checkCommandText(phase, i, c.Text, report)
	}
}

func validateAgentSteps(phase string, steps []agent.Step, report *Report) {
	for i, step := range steps {
		switch step.Kind {
		case agent.StepShell:
			checkCommandText(phase, i, step.Command, report)
		case agent.StepClaude:
			if strings.TrimSpace(step.Command) == "" {
				report.Issues = append(report.Issues, Issue{Severity: SeverityError, Phase: phase, Index: i, Message: "claude step has an empty prompt"})
			}
			report.VariableReferences = appendUnique(report.VariableReferences, variables.ExtractReferences(step.Command)...)
		default:
			report.Issues = append(report.Issues, Issue{Severity: SeverityError, Phase: phase, Index: i, Message: fmt.Sprintf("unknown step kind %q", step.Kind)})
		}
	}
}

func checkCommandText(phase string, index int, text string, report *Report) {
	if strings.TrimSpace(text) == "" {
		report.Issues = append(report.Issues, Issue{Severity: SeverityError, Phase: phase, Index: index, Message: "command is empty"})
		return
	}
	for _, pattern := range dangerousPatterns {
		if strings.Contains(text, pattern) {
			report.Issues = append(report.Issues, Issue{
				Severity: SeverityError,
				Phase:    phase,
				Index:    index,
				Message:  fmt.Sprintf("command matches a known-destructive pattern (%q)", pattern),
			})
			break
		}
	}
	report.VariableReferences = appendUnique(report.VariableReferences, variables.ExtractReferences(text)...)
}

func appendUnique(existing []string, refs ...string) []string {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e] = true
	}
	for _, r := range refs {
		if !seen[r] {
			seen[r] = true
			existing = append(existing, r)
		}
	}
	return existing
}

const (
	memPerWorktreeMB   = 50
	diskPerWorktreeMB  = 20
	checkpointPerItemKB = 2
)

// estimateResources scales a rough per-worktree footprint by how many
// worktrees can exist concurrently (min(maxParallel, itemCount)); the
// checkpoint's own size grows with the full item count since every
// item's state is tracked regardless of concurrency.
func estimateResources(maxParallel, itemCount int) ResourceEstimate {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	concurrent := maxParallel
	if itemCount < concurrent {
		concurrent = itemCount
	}
	return ResourceEstimate{
		WorktreeCount: concurrent,
		MemoryUsageMB: concurrent * memPerWorktreeMB,
		DiskUsageMB:   concurrent * diskPerWorktreeMB,
		CheckpointMB:  (itemCount * checkpointPerItemKB) / 1024,
	}
}
