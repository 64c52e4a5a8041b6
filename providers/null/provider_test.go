package null

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdock-io/stackdock/internal/ir"
	api "github.com/stackdock-io/stackdock/pkg/provider"
)

func TestProvider_Plan(t *testing.T) {
	p := New()
	ctx := context.Background()

	// 1. Create plan (new resource)
	desired := Spec{Triggers: map[string]string{"foo": "bar"}}
	desiredJSON, _ := json.Marshal(desired)

	resp, err := p.Plan(ctx, &api.PlanRequest{
		Type:        "null_resource",
		Name:        "test",
		DesiredJSON: desiredJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, ir.ActionCreate, resp.Action)

	// 2. No-op plan (same triggers)
	priorJSON, _ := json.Marshal(Spec{Triggers: desired.Triggers})
	outputsJSON, _ := json.Marshal(Outputs{ID: "null-test", Triggers: desired.Triggers})

	resp, err = p.Plan(ctx, &api.PlanRequest{
		Type:             "null_resource",
		Name:             "test",
		DesiredJSON:      desiredJSON,
		PriorInputsJSON:  priorJSON,
		PriorOutputsJSON: outputsJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, ir.ActionNoop, resp.Action)

	// 3. Changed triggers force a replacement
	newDesiredJSON, _ := json.Marshal(Spec{Triggers: map[string]string{"foo": "baz"}})

	resp, err = p.Plan(ctx, &api.PlanRequest{
		Type:             "null_resource",
		Name:             "test",
		DesiredJSON:      newDesiredJSON,
		PriorInputsJSON:  priorJSON,
		PriorOutputsJSON: outputsJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, ir.ActionReplace, resp.Action)
	assert.Contains(t, resp.ChangedAttributes, "triggers")

	// 4. Removal from the declaration plans a delete
	resp, err = p.Plan(ctx, &api.PlanRequest{
		Type:             "null_resource",
		Name:             "test",
		PriorInputsJSON:  priorJSON,
		PriorOutputsJSON: outputsJSON,
	})
	require.NoError(t, err)
	assert.Equal(t, ir.ActionDelete, resp.Action)
}

func TestProvider_Apply(t *testing.T) {
	p := New()
	ctx := context.Background()

	desiredJSON, _ := json.Marshal(Spec{Triggers: map[string]string{"foo": "bar"}})

	resp, err := p.Apply(ctx, &api.ApplyRequest{
		Type:        "null_resource",
		Name:        "test",
		Action:      ir.ActionCreate,
		DesiredJSON: desiredJSON,
	})
	require.NoError(t, err)

	var outputs Outputs
	require.NoError(t, json.Unmarshal(resp.OutputsJSON, &outputs))
	assert.Equal(t, "null-test", outputs.ID)
	assert.Equal(t, "bar", outputs.Triggers["foo"])
}

func TestProvider_Delete(t *testing.T) {
	p := New()

	_, err := p.Delete(context.Background(), &api.DeleteRequest{
		Type:        "null_resource",
		Name:        "test",
		OutputsJSON: []byte(`{"id":"null-test"}`),
	})
	assert.NoError(t, err)
}
