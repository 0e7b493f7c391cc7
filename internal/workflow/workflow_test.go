package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/prodigy/internal/mapreduce/agent"
)

const sampleYAML = `
name: process-items
mode: mapreduce
setup:
  - shell: "echo preparing"
map:
  input: items.json
  json_path: "$.items[*]"
  max_parallel: 4
  agent_timeout_secs: 60
  agent_template:
    - claude: "/process ${item.id}"
    - shell: "echo done ${item.id}"
      on_failure:
        shell: "echo recovering"
reduce:
  - shell: "echo summarizing ${map.total}"
merge:
  commands:
    - shell: "echo merging"
`

func writeWorkflow(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadParsesSampleWorkflow(t *testing.T) {
	path := writeWorkflow(t, sampleYAML)
	f, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "process-items", f.Name)
	assert.Equal(t, ModeMapReduce, f.Mode)
	assert.Equal(t, "items.json", f.Map.Input)
	assert.Equal(t, 4, f.Map.MaxParallel)
	require.Len(t, f.Map.AgentTemplate, 2)
	assert.Equal(t, "/process ${item.id}", f.Map.AgentTemplate[0].Claude)
	require.NotNil(t, f.Map.AgentTemplate[1].OnFailure)
}

func TestValidateAcceptsSampleWorkflow(t *testing.T) {
	path := writeWorkflow(t, sampleYAML)
	f, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, f.Validate())
}

func TestValidateRejectsMissingAgentTemplate(t *testing.T) {
	f := File{Name: "x", Mode: ModeMapReduce, Map: MapFile{Input: "in.json", MaxParallel: 1}}
	errs := f.Validate()
	assert.NotEmpty(t, errs)
}

func TestValidateRejectsStepWithBothShellAndClaude(t *testing.T) {
	f := File{
		Name: "x", Mode: ModeMapReduce,
		Map: MapFile{
			Input: "in.json", MaxParallel: 1,
			AgentTemplate: []StepFile{{Shell: "echo hi", Claude: "/do"}},
		},
	}
	errs := f.Validate()
	assert.NotEmpty(t, errs)
}

func TestToCoordinatorSpecTranslatesPhases(t *testing.T) {
	path := writeWorkflow(t, sampleYAML)
	f, err := Load(path)
	require.NoError(t, err)

	spec, err := f.ToCoordinatorSpec([]byte(`{"items":[{"id":1}]}`))
	require.NoError(t, err)

	require.Len(t, spec.Setup, 1)
	assert.Equal(t, "echo preparing", spec.Setup[0].Shell)

	require.Len(t, spec.AgentSteps, 2)
	assert.Equal(t, agent.StepClaude, spec.AgentSteps[0].Kind)
	assert.Equal(t, agent.StepShell, spec.AgentSteps[1].Kind)
	require.NotNil(t, spec.AgentSteps[1].OnFailure)
	assert.Equal(t, "echo recovering", spec.AgentSteps[1].OnFailure.Command)

	require.Len(t, spec.Reduce, 1)
	require.Len(t, spec.Merge, 1)
	assert.Equal(t, "echo merging", spec.Merge[0].Command)
}

func TestToCoordinatorSpecFailsOnInvalidFile(t *testing.T) {
	f := File{Name: "", Mode: ModeMapReduce}
	_, err := f.ToCoordinatorSpec(nil)
	require.Error(t, err)
}
