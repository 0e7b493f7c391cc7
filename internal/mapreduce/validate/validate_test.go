package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
)

func TestCheckpointAccumulatesAllViolations(t *testing.T) {
	cp := model.Checkpoint{
		Metadata: model.Metadata{
			TotalWorkItems: 5,
			CompletedItems: 9,
			Phase:          model.PhaseMap,
		},
		WorkItemState: model.WorkItemState{
			PendingItems: []model.WorkItem{{ID: "a"}, {ID: "a"}},
			CompletedItems: map[string]model.AgentResult{
				"b": {},
			},
		},
		AgentState: model.AgentState{
			AgentAssignments: map[string][]string{"agent-1": {"a"}},
		},
		ExecutionState: model.ExecutionState{
			CurrentPhase: model.PhaseReduce,
		},
	}

	violations := Checkpoint(cp)

	// Expect every distinct kind of violation present, not just the first.
	var sawDuplicate, sawCount, sawOrphan, sawPhase bool
	for _, v := range violations {
		switch v.(type) {
		case DuplicateWorkItemID:
			sawDuplicate = true
		case WorkItemCountMismatch:
			sawCount = true
		case OrphanedAgentAssignment:
			sawOrphan = true
		case InvalidPhaseState:
			sawPhase = true
		}
	}
	assert.True(t, sawDuplicate, "expected DuplicateWorkItemID")
	assert.True(t, sawCount, "expected WorkItemCountMismatch")
	assert.True(t, sawOrphan, "expected OrphanedAgentAssignment")
	assert.True(t, sawPhase, "expected InvalidPhaseState")
}

func TestCheckpointCleanIsViolationFree(t *testing.T) {
	cp := model.Checkpoint{
		Metadata: model.Metadata{
			TotalWorkItems: 2,
			CompletedItems: 1,
			Phase:          model.PhaseMap,
		},
		WorkItemState: model.WorkItemState{
			PendingItems: []model.WorkItem{{ID: "a"}},
			CompletedItems: map[string]model.AgentResult{
				"b": {ItemID: "b", Status: model.AgentSuccess},
			},
		},
		AgentState: model.AgentState{
			ActiveAgents:     map[string]model.AgentContext{"agent-1": {AgentID: "agent-1"}},
			AgentAssignments: map[string][]string{"agent-1": {"a"}},
		},
		ExecutionState: model.ExecutionState{
			CurrentPhase: model.PhaseMap,
		},
	}

	assert.Empty(t, Checkpoint(cp))
}

func TestWorkItemInMultipleStatesDetected(t *testing.T) {
	cp := model.Checkpoint{
		WorkItemState: model.WorkItemState{
			PendingItems: []model.WorkItem{{ID: "dup"}},
			CompletedItems: map[string]model.AgentResult{
				"dup": {},
			},
		},
	}

	violations := Checkpoint(cp)
	found := false
	for _, v := range violations {
		if ms, ok := v.(WorkItemInMultipleStates); ok && ms.ItemID == "dup" {
			found = true
		}
	}
	assert.True(t, found, "expected WorkItemInMultipleStates for id 'dup'")
}
