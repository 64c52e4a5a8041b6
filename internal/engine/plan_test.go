package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdock-io/stackdock/internal/ir"
	"github.com/stackdock-io/stackdock/internal/provider"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	reg := provider.NewRegistry()
	require.NoError(t, reg.LoadProvider("null"))
	require.NoError(t, reg.LoadProvider("random"))
	return NewEngine(reg)
}

func TestCreatePlan_NewResources(t *testing.T) {
	eng := newTestEngine(t)

	cfg := &ir.Config{
		Name: "test",
		Resources: []*ir.Resource{
			{Type: "null_resource", Name: "a", Provider: "null", Properties: map[string]any{
				"triggers": map[string]any{"k": "v"},
			}},
			{Type: "null_resource", Name: "b", Provider: "null", DependsOn: []string{"null_resource.a"}},
		},
	}

	plan, err := eng.CreatePlan(context.Background(), cfg, &ir.State{Version: 1})
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, ir.ActionCreate, plan.Changes[0].Action)
	assert.Equal(t, "null_resource.a", plan.Changes[0].Address)
	assert.Equal(t, "null_resource.b", plan.Changes[1].Address)
	assert.Equal(t, 2, plan.Summary.Create)
}

func TestCreatePlan_Idempotent(t *testing.T) {
	eng := newTestEngine(t)

	props := map[string]any{"triggers": map[string]any{"k": "v"}}
	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{Type: "null_resource", Name: "a", Provider: "null", Properties: props},
		},
	}
	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Type: "null_resource", Name: "a", Provider: "null",
				Inputs:  props,
				Outputs: map[string]any{"id": "null-a"}},
		},
	}

	plan, err := eng.CreatePlan(context.Background(), cfg, state)
	require.NoError(t, err)

	assert.True(t, plan.IsEmpty(), "unchanged declaration must produce an empty plan")
	assert.Equal(t, 1, plan.Summary.NoOp)
}

func TestCreatePlan_SecretStableAcrossRuns(t *testing.T) {
	eng := newTestEngine(t)

	props := map[string]any{"length": 24, "special": false}
	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{Type: "random_password", Name: "db", Provider: "random", Properties: props},
		},
	}
	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Type: "random_password", Name: "db", Provider: "random",
				Inputs:  props,
				Outputs: map[string]any{"value": "unchanged-secret", "length": 24}},
		},
	}

	plan, err := eng.CreatePlan(context.Background(), cfg, state)
	require.NoError(t, err)
	assert.True(t, plan.IsEmpty(), "an unchanged policy must never rotate the secret")
}

func TestCreatePlan_RemovedResourcesDeleteInReverseOrder(t *testing.T) {
	eng := newTestEngine(t)

	// web depends on net; both removed from the declaration. web must be
	// deleted before net.
	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Type: "null_resource", Name: "net", Provider: "null", Outputs: map[string]any{"id": "null-net"}},
			{Type: "null_resource", Name: "web", Provider: "null",
				Outputs:      map[string]any{"id": "null-web"},
				Dependencies: []string{"null_resource.net"}},
		},
	}

	plan, err := eng.CreatePlan(context.Background(), &ir.Config{}, state)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, ir.ActionDelete, plan.Changes[0].Action)
	assert.Equal(t, "null_resource.web", plan.Changes[0].Address)
	assert.Equal(t, "null_resource.net", plan.Changes[1].Address)
	assert.Equal(t, 2, plan.Summary.Delete)
}

func TestCreatePlan_PreventDestroy(t *testing.T) {
	eng := newTestEngine(t)

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{Type: "null_resource", Name: "a", Provider: "null",
				Lifecycle:  &ir.Lifecycle{PreventDestroy: true},
				Properties: map[string]any{"triggers": map[string]any{"k": "new"}}},
		},
	}
	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Type: "null_resource", Name: "a", Provider: "null",
				Inputs:  map[string]any{"triggers": map[string]any{"k": "old"}},
				Outputs: map[string]any{"id": "null-a"}},
		},
	}

	_, err := eng.CreatePlan(context.Background(), cfg, state)
	require.Error(t, err)

	var pe *PlanError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "null_resource.a", pe.Address)
	assert.True(t, IsConfigError(err))
}

func TestCreatePlan_IgnoreChanges(t *testing.T) {
	eng := newTestEngine(t)

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{Type: "null_resource", Name: "a", Provider: "null",
				Lifecycle:  &ir.Lifecycle{IgnoreChanges: []string{"triggers"}},
				Properties: map[string]any{"triggers": map[string]any{"k": "new"}}},
		},
	}
	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Type: "null_resource", Name: "a", Provider: "null",
				Inputs:  map[string]any{"triggers": map[string]any{"k": "old"}},
				Outputs: map[string]any{"id": "null-a"}},
		},
	}

	plan, err := eng.CreatePlan(context.Background(), cfg, state)
	require.NoError(t, err)
	assert.True(t, plan.IsEmpty())
}

func TestCreatePlan_UnknownReferenceFails(t *testing.T) {
	eng := newTestEngine(t)

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{Type: "null_resource", Name: "a", Provider: "null", Properties: map[string]any{
				"triggers": map[string]any{"dep": "ref://null_resource.ghost/id"},
			}},
		},
	}

	_, err := eng.CreatePlan(context.Background(), cfg, &ir.State{Version: 1})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestCreateDestroyPlan(t *testing.T) {
	eng := newTestEngine(t)

	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Type: "null_resource", Name: "base", Provider: "null", Outputs: map[string]any{"id": "null-base"}},
			{Type: "null_resource", Name: "app", Provider: "null",
				Outputs:      map[string]any{"id": "null-app"},
				Dependencies: []string{"null_resource.base"}},
		},
	}

	plan, err := eng.CreateDestroyPlan(context.Background(), state)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 2)
	assert.Equal(t, "null_resource.app", plan.Changes[0].Address)
	assert.Equal(t, "null_resource.base", plan.Changes[1].Address)
	for _, change := range plan.Changes {
		assert.Equal(t, ir.ActionDelete, change.Action)
	}
}

func TestCreatePlan_CountExpansion(t *testing.T) {
	eng := newTestEngine(t)

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{Type: "null_resource", Name: "worker", Provider: "null", Count: 3,
				Properties: map[string]any{"triggers": map[string]any{"index": "${count.index}"}}},
		},
	}

	plan, err := eng.CreatePlan(context.Background(), cfg, &ir.State{Version: 1})
	require.NoError(t, err)

	require.Len(t, plan.Changes, 3)
	assert.Equal(t, "null_resource.worker-0", plan.Changes[0].Address)
	assert.Equal(t, "null_resource.worker-2", plan.Changes[2].Address)
}

func TestCreatePlan_ReplaceCascadesToDependents(t *testing.T) {
	eng := newTestEngine(t)

	// a is replaced (changed triggers). b references a and c depends on b;
	// neither changed on its own, but both captured values from instances
	// that are about to be destroyed.
	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{Type: "null_resource", Name: "a", Provider: "null",
				Properties: map[string]any{"triggers": map[string]any{"k": "new"}}},
			{Type: "null_resource", Name: "b", Provider: "null",
				Properties: map[string]any{"triggers": map[string]any{"dep": "ref://null_resource.a/id"}}},
			{Type: "null_resource", Name: "c", Provider: "null",
				DependsOn:  []string{"null_resource.b"},
				Properties: map[string]any{"triggers": map[string]any{"k": "v"}}},
		},
	}
	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Type: "null_resource", Name: "a", Provider: "null",
				Inputs:  map[string]any{"triggers": map[string]any{"k": "old"}},
				Outputs: map[string]any{"id": "null-a"}},
			{Type: "null_resource", Name: "b", Provider: "null",
				Inputs:       map[string]any{"triggers": map[string]any{"dep": "ref://null_resource.a/id"}},
				Outputs:      map[string]any{"id": "null-b"},
				Dependencies: []string{"null_resource.a"}},
			{Type: "null_resource", Name: "c", Provider: "null",
				Inputs:       map[string]any{"triggers": map[string]any{"k": "v"}},
				Outputs:      map[string]any{"id": "null-c"},
				Dependencies: []string{"null_resource.b"}},
		},
	}

	plan, err := eng.CreatePlan(context.Background(), cfg, state)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 3)
	assert.Equal(t, "null_resource.a", plan.Changes[0].Address)
	assert.Equal(t, "null_resource.b", plan.Changes[1].Address)
	assert.Equal(t, "null_resource.c", plan.Changes[2].Address)
	for _, change := range plan.Changes {
		assert.Equal(t, ir.ActionReplace, change.Action, change.Address)
	}
	assert.Equal(t, 3, plan.Summary.Replace)
	assert.Equal(t, 0, plan.Summary.NoOp)
}

func TestCreatePlan_ReplaceDoesNotCascadeToUnrelated(t *testing.T) {
	eng := newTestEngine(t)

	cfg := &ir.Config{
		Resources: []*ir.Resource{
			{Type: "null_resource", Name: "a", Provider: "null",
				Properties: map[string]any{"triggers": map[string]any{"k": "new"}}},
			{Type: "null_resource", Name: "other", Provider: "null",
				Properties: map[string]any{"triggers": map[string]any{"k": "v"}}},
		},
	}
	state := &ir.State{
		Version: 1,
		Resources: []*ir.ResourceState{
			{Type: "null_resource", Name: "a", Provider: "null",
				Inputs:  map[string]any{"triggers": map[string]any{"k": "old"}},
				Outputs: map[string]any{"id": "null-a"}},
			{Type: "null_resource", Name: "other", Provider: "null",
				Inputs:  map[string]any{"triggers": map[string]any{"k": "v"}},
				Outputs: map[string]any{"id": "null-other"}},
		},
	}

	plan, err := eng.CreatePlan(context.Background(), cfg, state)
	require.NoError(t, err)

	require.Len(t, plan.Changes, 1)
	assert.Equal(t, "null_resource.a", plan.Changes[0].Address)
	assert.Equal(t, 1, plan.Summary.NoOp)
}
