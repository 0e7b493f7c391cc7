// Package workflow parses the surface YAML syntax spec.md §6 defines
// (name/mode/setup/map/reduce/merge) into typed Go structs, and builds
// the coordinator's internal WorkflowSpec from them. It is the thin
// typed boundary spec.md explicitly calls "out of scope for deep
// implementation": everything past unmarshal and a direct field-by-
// field translation lives in the mapreduce packages, not here.
//
// Grounded on the teacher's pkg/config/koanf_loader.go: koanf.Koanf +
// the file provider + the yaml parser, unmarshaled with the "yaml" tag.
// The teacher's strict-validation pass (pkg/config/strict_validator.go)
// and env-var expansion/watch/remote-provider machinery are not carried
// over — a workflow file is read once at job start, not watched, and
// its only moving parts are the four phases below, so a hand-rolled
// Validate() pass mirroring the teacher's accumulate-errors style
// (not koanf's strict decoder, since there's no need for typo/suggestion
// detection over six known top-level keys) covers it more directly.
package workflow

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kadirpekel/prodigy/internal/mapreduce/agent"
	"github.com/kadirpekel/prodigy/internal/mapreduce/coordinator"
	"github.com/kadirpekel/prodigy/internal/mapreduce/pipeline"
	"github.com/kadirpekel/prodigy/internal/mapreduce/variables"
	"github.com/kadirpekel/prodigy/internal/mapreduce/worktree"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// Mode is the workflow's top-level execution mode. This module only
// implements MapReduce.
type Mode string

const (
	ModeMapReduce Mode = "mapreduce"
	ModeNormal    Mode = "normal"
)

// StepFile is one step as written in YAML: exactly one of Shell/Claude
// is set.
type StepFile struct {
	Name      string             `yaml:"name,omitempty"`
	Shell     string             `yaml:"shell,omitempty"`
	Claude    string             `yaml:"claude,omitempty"`
	Timeout   int                `yaml:"timeout,omitempty"` // seconds
	CaptureAs string             `yaml:"capture,omitempty"`
	Capture   *CaptureFile       `yaml:"capture_spec,omitempty"`
	OnFailure *StepFile          `yaml:"on_failure,omitempty"`
}

// CaptureFile mirrors variables.CaptureSpec in YAML-friendly form.
type CaptureFile struct {
	Kind    string `yaml:"kind,omitempty"` // "regex" | "json_path" | "line"
	Pattern string `yaml:"pattern,omitempty"`
	Line    int    `yaml:"line,omitempty"`
}

// MapFile is the map phase's YAML shape.
type MapFile struct {
	Input             string     `yaml:"input"`
	JSONPath          string     `yaml:"json_path,omitempty"`
	Filter            string     `yaml:"filter,omitempty"`
	SortBy            string     `yaml:"sort_by,omitempty"`
	Distinct          string     `yaml:"distinct,omitempty"`
	MaxItems          int        `yaml:"max_items,omitempty"`
	Offset            int        `yaml:"offset,omitempty"`
	MaxParallel       int        `yaml:"max_parallel"`
	AgentTimeoutSecs  int        `yaml:"agent_timeout_secs,omitempty"`
	AgentTemplate     []StepFile `yaml:"agent_template"`
}

// MergeFile is the merge phase's YAML shape.
type MergeFile struct {
	Commands []StepFile `yaml:"commands,omitempty"`
	Timeout  int        `yaml:"timeout,omitempty"`
}

// File is the root of a parsed workflow YAML document.
type File struct {
	Name   string     `yaml:"name"`
	Mode   Mode       `yaml:"mode"`
	Setup  []StepFile `yaml:"setup,omitempty"`
	Map    MapFile    `yaml:"map"`
	Reduce []StepFile `yaml:"reduce,omitempty"`
	Merge  MergeFile  `yaml:"merge,omitempty"`
}

// Load reads and parses the workflow YAML at path.
func Load(path string) (File, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return File{}, fmt.Errorf("%w: read workflow %q: %s", mrerrors.ErrConfiguration, path, err)
	}
	var f File
	if err := k.UnmarshalWithConf("", &f, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return File{}, fmt.Errorf("%w: unmarshal workflow %q: %s", mrerrors.ErrConfiguration, path, err)
	}
	return f, nil
}

// Validate accumulates every structural problem in f rather than
// stopping at the first, mirroring the error-accumulation style used
// throughout this module (validate.Checkpoint, dryrun.Validate).
func (f File) Validate() []error {
	var errs []error
	if f.Name == "" {
		errs = append(errs, fmt.Errorf("%w: workflow name is required", mrerrors.ErrConfiguration))
	}
	if f.Mode != ModeMapReduce && f.Mode != ModeNormal {
		errs = append(errs, fmt.Errorf("%w: mode must be %q or %q, got %q", mrerrors.ErrConfiguration, ModeMapReduce, ModeNormal, f.Mode))
	}
	if f.Mode == ModeMapReduce {
		if f.Map.Input == "" {
			errs = append(errs, fmt.Errorf("%w: map.input is required", mrerrors.ErrConfiguration))
		}
		if f.Map.MaxParallel <= 0 {
			errs = append(errs, fmt.Errorf("%w: map.max_parallel must be positive", mrerrors.ErrConfiguration))
		}
		if len(f.Map.AgentTemplate) == 0 {
			errs = append(errs, fmt.Errorf("%w: map.agent_template must have at least one step", mrerrors.ErrConfiguration))
		}
	}
	for i, step := range f.Setup {
		errs = append(errs, validateStep("setup", i, step)...)
	}
	for i, step := range f.Map.AgentTemplate {
		errs = append(errs, validateStep("map.agent_template", i, step)...)
	}
	for i, step := range f.Reduce {
		errs = append(errs, validateStep("reduce", i, step)...)
	}
	for i, step := range f.Merge.Commands {
		errs = append(errs, validateStep("merge.commands", i, step)...)
	}
	return errs
}

func validateStep(phase string, i int, step StepFile) []error {
	var errs []error
	if step.Shell == "" && step.Claude == "" {
		errs = append(errs, fmt.Errorf("%w: %s[%d] must set shell or claude", mrerrors.ErrConfiguration, phase, i))
	}
	if step.Shell != "" && step.Claude != "" {
		errs = append(errs, fmt.Errorf("%w: %s[%d] sets both shell and claude", mrerrors.ErrConfiguration, phase, i))
	}
	return errs
}

// ToCoordinatorSpec translates a parsed, validated File plus its raw
// map-input document into the shape the coordinator executes. inputData
// is the resolved contents of map.input (spec.md's `<path|string|shell:...>`
// resolution is left to the caller, since it needs filesystem/subprocess
// access this package doesn't otherwise require).
func (f File) ToCoordinatorSpec(inputData []byte) (coordinator.WorkflowSpec, error) {
	if violations := f.Validate(); len(violations) > 0 {
		return coordinator.WorkflowSpec{}, fmt.Errorf("%w: %d validation error(s), first: %s", mrerrors.ErrConfiguration, len(violations), violations[0])
	}

	spec := coordinator.WorkflowSpec{
		MapInputData: inputData,
		MapPipeline: pipeline.Config{
			JSONPath: f.Map.JSONPath,
			Filter:   f.Map.Filter,
			SortBy:   f.Map.SortBy,
			Distinct: f.Map.Distinct,
			MaxItems: f.Map.MaxItems,
			Offset:   f.Map.Offset,
		},
	}

	for i, step := range f.Setup {
		spec.Setup = append(spec.Setup, toCommand(fmt.Sprintf("setup-%d", i), step))
	}
	for _, step := range f.Map.AgentTemplate {
		agentStep, err := toAgentStep(step)
		if err != nil {
			return coordinator.WorkflowSpec{}, err
		}
		spec.AgentSteps = append(spec.AgentSteps, agentStep)
	}
	for i, step := range f.Reduce {
		spec.Reduce = append(spec.Reduce, toCommand(fmt.Sprintf("reduce-%d", i), step))
	}
	for _, step := range f.Merge.Commands {
		spec.Merge = append(spec.Merge, worktree.MergeStep{Command: firstNonEmpty(step.Shell, step.Claude)})
	}

	return spec, nil
}

func toCommand(name string, step StepFile) coordinator.Command {
	cmd := coordinator.Command{Name: name, Shell: step.Shell}
	if step.CaptureAs != "" {
		cmd.CaptureAs = step.CaptureAs
		cmd.Capture = toCaptureSpec(step.Capture)
	}
	return cmd
}

func toAgentStep(step StepFile) (agent.Step, error) {
	out := agent.Step{Timeout: time.Duration(step.Timeout) * time.Second}
	switch {
	case step.Shell != "":
		out.Kind = agent.StepShell
		out.Command = step.Shell
	case step.Claude != "":
		out.Kind = agent.StepClaude
		out.Command = step.Claude
	default:
		return agent.Step{}, fmt.Errorf("%w: agent step must set shell or claude", mrerrors.ErrConfiguration)
	}
	if step.CaptureAs != "" {
		out.CaptureAs = step.CaptureAs
		out.Capture = toCaptureSpec(step.Capture)
	}
	if step.OnFailure != nil {
		recovery, err := toAgentStep(*step.OnFailure)
		if err != nil {
			return agent.Step{}, err
		}
		out.OnFailure = &recovery
	}
	return out, nil
}

func toCaptureSpec(c *CaptureFile) *variables.CaptureSpec {
	if c == nil {
		return nil
	}
	var kind variables.CaptureKind
	switch c.Kind {
	case "json_path":
		kind = variables.CaptureJSONPath
	case "line":
		kind = variables.CaptureLine
	default:
		kind = variables.CaptureRegex
	}
	return &variables.CaptureSpec{Kind: kind, Pattern: c.Pattern, Line: c.Line}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
