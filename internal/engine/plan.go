package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stackdock-io/stackdock/internal/ir"
	"github.com/stackdock-io/stackdock/internal/logging"
	"github.com/stackdock-io/stackdock/internal/provider"
	api "github.com/stackdock-io/stackdock/pkg/provider"
)

// Engine orchestrates the lifecycle of resources.
type Engine struct {
	registry *provider.Registry

	// Parallelism caps the number of concurrent provider calls during
	// apply. Zero means DefaultParallelism.
	Parallelism int
}

func NewEngine(registry *provider.Registry) *Engine {
	return &Engine{registry: registry}
}

// CreatePlan diffs the desired configuration against the applied state and
// produces an ordered execution plan. It performs no side effects; every
// error it returns belongs to the configuration-time taxonomy.
func (e *Engine) CreatePlan(ctx context.Context, cfg *ir.Config, state *ir.State) (*ir.Plan, error) {
	logging.Debug("creating plan", "resources", len(cfg.Resources), "state_resources", len(state.Resources))

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Stack:     cfg.Name,
		},
		Changes: []*ir.ResourceChange{},
		Summary: &ir.PlanSummary{},
		Outputs: cfg.Outputs,
	}

	resources := ExpandResources(cfg.Resources)

	graph, err := Build(resources)
	if err != nil {
		return nil, err
	}

	for _, res := range resources {
		if err := e.registry.LoadProvider(res.Provider); err != nil {
			return nil, &PlanError{Address: res.Address(), Reason: "loading provider", Err: err}
		}
	}

	stateMap := make(map[string]*ir.ResourceState, len(state.Resources))
	for _, res := range state.Resources {
		stateMap[res.Address()] = res
	}
	configByAddr := make(map[string]*ir.Resource, len(resources))
	for _, res := range resources {
		configByAddr[res.Address()] = res
	}

	// Walk desired resources in creation order. Replacements recorded here
	// cascade to dependents processed later in the walk.
	replacing := make(map[string]bool)
	for _, addr := range graph.CreationOrder() {
		res, ok := configByAddr[addr]
		if !ok {
			continue
		}

		prov, err := e.registry.Get(res.Provider)
		if err != nil {
			return nil, &PlanError{Address: addr, Reason: "resolving provider", Err: err}
		}

		desiredJSON, err := json.Marshal(normalizeValue(res.Properties))
		if err != nil {
			return nil, &PlanError{Address: addr, Reason: "encoding properties", Err: err}
		}

		req := &api.PlanRequest{
			Type:        res.Type,
			Name:        res.Name,
			DesiredJSON: desiredJSON,
		}
		prior := stateMap[addr]
		if prior != nil {
			req.PriorInputsJSON, _ = json.Marshal(prior.Inputs)
			req.PriorOutputsJSON, _ = json.Marshal(prior.Outputs)
		}

		resp, err := prov.Plan(ctx, req)
		if err != nil {
			return nil, &PlanError{Address: addr, Reason: "provider plan", Err: err}
		}

		action := resp.Action
		if action == ir.ActionUpdate || action == ir.ActionReplace {
			action = filterIgnoredChanges(res, resp)
		}

		// A replaced dependency invalidates every value this resource
		// captured from its old instance, so the dependent is rebuilt
		// against the new one.
		if prior != nil && (action == ir.ActionNoop || action == ir.ActionUpdate) {
			for _, dep := range graph.Dependencies(addr) {
				if replacing[dep] {
					action = ir.ActionReplace
					break
				}
			}
		}

		if action == ir.ActionNoop {
			plan.Summary.NoOp++
			continue
		}

		if err := enforceLifecycle(res, action); err != nil {
			return nil, err
		}
		if action == ir.ActionReplace {
			replacing[addr] = true
		}

		change := &ir.ResourceChange{
			Address: addr,
			Action:  action,
			Desired: res,
		}
		if prior != nil {
			change.Prior = &ir.Resource{
				Type:       prior.Type,
				Name:       prior.Name,
				Provider:   prior.Provider,
				Properties: prior.Inputs,
			}
			change.Diff = buildPropertyDiff(prior.Inputs, res.Properties, resp)
		} else {
			change.Diff = buildCreateDiff(res.Properties, resp)
		}

		plan.Changes = append(plan.Changes, change)

		switch action {
		case ir.ActionCreate:
			plan.Summary.Create++
		case ir.ActionUpdate:
			plan.Summary.Update++
		case ir.ActionReplace:
			plan.Summary.Replace++
		case ir.ActionDelete:
			plan.Summary.Delete++
		}
	}

	// Resources in state but absent from the declaration set are deleted,
	// dependents strictly before their dependencies.
	var removed []*ir.ResourceState
	for _, res := range state.Resources {
		if _, declared := configByAddr[res.Address()]; !declared {
			removed = append(removed, res)
		}
	}
	if len(removed) > 0 {
		deletes, err := orderDeletes(state, removed)
		if err != nil {
			return nil, err
		}
		for _, res := range deletes {
			plan.Changes = append(plan.Changes, &ir.ResourceChange{
				Address: res.Address(),
				Action:  ir.ActionDelete,
				Prior: &ir.Resource{
					Type:       res.Type,
					Name:       res.Name,
					Provider:   res.Provider,
					Properties: res.Inputs,
				},
				Diff: buildDeleteDiff(res.Inputs),
			})
			plan.Summary.Delete++
		}
	}

	return plan, nil
}

// CreateDestroyPlan plans the deletion of every resource in state, in
// reverse dependency order.
func (e *Engine) CreateDestroyPlan(ctx context.Context, state *ir.State) (*ir.Plan, error) {
	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{Timestamp: time.Now().UTC().Format(time.RFC3339)},
		Changes:  []*ir.ResourceChange{},
		Summary:  &ir.PlanSummary{},
	}

	deletes, err := orderDeletes(state, state.Resources)
	if err != nil {
		return nil, err
	}
	for _, res := range deletes {
		if err := e.registry.LoadProvider(res.Provider); err != nil {
			return nil, &PlanError{Address: res.Address(), Reason: "loading provider", Err: err}
		}
		plan.Changes = append(plan.Changes, &ir.ResourceChange{
			Address: res.Address(),
			Action:  ir.ActionDelete,
			Prior: &ir.Resource{
				Type:       res.Type,
				Name:       res.Name,
				Provider:   res.Provider,
				Properties: res.Inputs,
			},
			Diff: buildDeleteDiff(res.Inputs),
		})
		plan.Summary.Delete++
	}
	return plan, nil
}

// orderDeletes returns the given state resources in destruction order
// (dependents before dependencies), using the dependency edges recorded in
// state at apply time.
func orderDeletes(state *ir.State, subset []*ir.ResourceState) ([]*ir.ResourceState, error) {
	graph, err := BuildFromState(state.Resources)
	if err != nil {
		return nil, err
	}

	want := make(map[string]*ir.ResourceState, len(subset))
	for _, res := range subset {
		want[res.Address()] = res
	}

	ordered := make([]*ir.ResourceState, 0, len(subset))
	for _, addr := range graph.DestructionOrder() {
		if res, ok := want[addr]; ok {
			ordered = append(ordered, res)
		}
	}
	if len(ordered) != len(subset) {
		return nil, &PlanError{Reason: fmt.Sprintf("destroy ordering lost resources: want %d, got %d", len(subset), len(ordered))}
	}
	return ordered, nil
}

// enforceLifecycle rejects plans that violate a resource's lifecycle block.
func enforceLifecycle(res *ir.Resource, action ir.Action) error {
	if res.Lifecycle == nil {
		return nil
	}
	if res.Lifecycle.PreventDestroy && (action == ir.ActionDelete || action == ir.ActionReplace) {
		return &PlanError{
			Address: res.Address(),
			Reason:  "prevent_destroy is set but the plan requires destruction",
		}
	}
	return nil
}

// filterIgnoredChanges downgrades an update/replace to NOOP when every
// changed attribute is listed in ignore_changes.
func filterIgnoredChanges(res *ir.Resource, resp *api.PlanResponse) ir.Action {
	if res.Lifecycle == nil || len(res.Lifecycle.IgnoreChanges) == 0 {
		return resp.Action
	}
	if len(resp.ChangedAttributes) == 0 {
		return resp.Action
	}

	ignored := make(map[string]bool, len(res.Lifecycle.IgnoreChanges))
	for _, attr := range res.Lifecycle.IgnoreChanges {
		ignored[attr] = true
	}
	for _, attr := range resp.ChangedAttributes {
		if !ignored[attr] {
			return resp.Action
		}
	}
	return ir.ActionNoop
}

func buildPropertyDiff(prior, desired map[string]any, resp *api.PlanResponse) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)

	replaces := make(map[string]bool, len(resp.ReplaceAttributes))
	for _, attr := range resp.ReplaceAttributes {
		replaces[attr] = true
	}
	sensitive := make(map[string]bool, len(resp.SensitiveAttributes))
	for _, attr := range resp.SensitiveAttributes {
		sensitive[attr] = true
	}

	allKeys := make(map[string]bool)
	for k := range prior {
		allKeys[k] = true
	}
	for k := range desired {
		allKeys[k] = true
	}

	for k := range allKeys {
		priorVal, inPrior := prior[k]
		desiredVal, inDesired := desired[k]

		var d *ir.PropertyDiff
		switch {
		case !inPrior:
			d = &ir.PropertyDiff{After: desiredVal, Action: "create"}
		case !inDesired:
			d = &ir.PropertyDiff{Before: priorVal, Action: "delete"}
		case fmt.Sprintf("%v", priorVal) != fmt.Sprintf("%v", desiredVal):
			d = &ir.PropertyDiff{Before: priorVal, After: desiredVal, Action: "update"}
		default:
			continue
		}
		d.ForcesReplacement = replaces[k]
		d.Sensitive = sensitive[k]
		diff[k] = d
	}

	return diff
}

func buildCreateDiff(props map[string]any, resp *api.PlanResponse) map[string]*ir.PropertyDiff {
	sensitive := make(map[string]bool, len(resp.SensitiveAttributes))
	for _, attr := range resp.SensitiveAttributes {
		sensitive[attr] = true
	}

	diff := make(map[string]*ir.PropertyDiff, len(props))
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{After: v, Action: "create", Sensitive: sensitive[k]}
	}
	return diff
}

func buildDeleteDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff, len(props))
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{Before: v, Action: "delete"}
	}
	return diff
}

// normalizeValue rewrites YAML-flavored maps into JSON-encodable ones.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[any]any:
		newMap := make(map[string]any, len(val))
		for k, v := range val {
			newMap[fmt.Sprintf("%v", k)] = normalizeValue(v)
		}
		return newMap
	case map[string]any:
		newMap := make(map[string]any, len(val))
		for k, v := range val {
			newMap[k] = normalizeValue(v)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(val))
		for i, v := range val {
			newSlice[i] = normalizeValue(v)
		}
		return newSlice
	default:
		return val
	}
}
