package dryrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/prodigy/internal/mapreduce/agent"
	"github.com/kadirpekel/prodigy/internal/mapreduce/coordinator"
	"github.com/kadirpekel/prodigy/internal/mapreduce/pipeline"
)

func TestValidateHealthyWorkflow(t *testing.T) {
	spec := coordinator.WorkflowSpec{
		Setup:        []coordinator.Command{{Name: "install", Shell: "echo installing"}},
		MapPipeline:  pipeline.Config{},
		AgentSteps:   []agent.Step{{Kind: agent.StepClaude, Command: "/process ${item.id}"}},
		Reduce:       []coordinator.Command{{Name: "summarize", Shell: "echo ${map.total} done"}},
	}
	doc := []byte(`[{"id":1,"name":"a"},{"id":2,"name":"b"},{"id":3,"name":"c"}]`)

	report, err := Validate(spec, doc, 5)
	require.NoError(t, err)

	assert.True(t, report.Valid())
	assert.Equal(t, 3, report.ItemCountEstimate)
	assert.Contains(t, report.VariableReferences, "item.id")
	assert.Contains(t, report.VariableReferences, "map.total")
	assert.Equal(t, 3, report.Resources.WorktreeCount) // min(5, 3)
	assert.Len(t, report.ItemPreview, 3)
}

func TestValidateFlagsDangerousShellCommand(t *testing.T) {
	spec := coordinator.WorkflowSpec{
		AgentSteps:  []agent.Step{{Kind: agent.StepShell, Command: "rm -rf /"}},
		MapPipeline: pipeline.Config{},
	}
	doc := []byte(`[{"id":1}]`)

	report, err := Validate(spec, doc, 1)
	require.NoError(t, err)
	assert.False(t, report.Valid())

	found := false
	for _, issue := range report.Issues {
		if issue.Phase == "map.agent_template" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateFlagsEmptyCommand(t *testing.T) {
	spec := coordinator.WorkflowSpec{
		Setup:       []coordinator.Command{{Name: "noop", Shell: ""}},
		MapPipeline: pipeline.Config{},
	}
	doc := []byte(`[{"id":1}]`)

	report, err := Validate(spec, doc, 1)
	require.NoError(t, err)
	assert.False(t, report.Valid())
}

func TestValidateRejectsInvalidJSON(t *testing.T) {
	spec := coordinator.WorkflowSpec{MapPipeline: pipeline.Config{}}
	report, err := Validate(spec, []byte("not json"), 1)
	require.NoError(t, err)
	assert.False(t, report.Valid())
}

func TestValidateExtractsVariableReferencesFromShellCommand(t *testing.T) {
	spec := coordinator.WorkflowSpec{
		AgentSteps:  []agent.Step{{Kind: agent.StepShell, Command: "echo '${item.name}' > ${shell.output}"}},
		MapPipeline: pipeline.Config{},
	}
	doc := []byte(`[{"id":1,"name":"x"}]`)

	report, err := Validate(spec, doc, 1)
	require.NoError(t, err)
	assert.Contains(t, report.VariableReferences, "item.name")
	assert.Contains(t, report.VariableReferences, "shell.output")
}
