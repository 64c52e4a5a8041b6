package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stackdock-io/stackdock/internal/ir"
	"github.com/stackdock-io/stackdock/internal/logging"
	api "github.com/stackdock-io/stackdock/pkg/provider"
)

// DefaultParallelism caps concurrent provider calls unless overridden.
const DefaultParallelism = 10

// ApplyEvent is a progress event during apply.
type ApplyEvent struct {
	Address  string
	Action   ir.Action
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Error    error
}

// ApplyCallback receives apply progress events.
type ApplyCallback func(event ApplyEvent)

// ApplyResult summarizes an apply run per resource.
type ApplyResult struct {
	Succeeded []string
	Failed    []string
	Skipped   []string // not attempted because a dependency failed or the run was cancelled
}

// ApplyOptions tunes a single apply run.
type ApplyOptions struct {
	Callback ApplyCallback

	// Checkpoint persists the state snapshot after every committed change,
	// so a crash mid-plan leaves a consistent partial record. Optional.
	Checkpoint func(state *ir.State) error

	Retry *RetryPolicy
}

// ApplyPlan executes a plan against the providers and returns the updated
// state plus a per-resource result summary.
func (e *Engine) ApplyPlan(ctx context.Context, plan *ir.Plan, state *ir.State) (*ir.State, *ApplyResult, error) {
	return e.ApplyPlanWithOptions(ctx, plan, state, ApplyOptions{})
}

// ApplyPlanWithOptions executes a plan with callbacks and checkpointing.
//
// Independent branches of the dependency graph run in parallel; a resource
// never starts before all of its dependencies have completed. A failed
// resource halts its dependent subgraph (those resources are reported as
// skipped) while unrelated branches keep going. Cancellation stops
// not-yet-started resources but lets in-flight provider calls finish.
func (e *Engine) ApplyPlanWithOptions(ctx context.Context, plan *ir.Plan, state *ir.State, opts ApplyOptions) (*ir.State, *ApplyResult, error) {
	var mu sync.Mutex
	result := &ApplyResult{}

	stateIndex := make(map[string]int, len(state.Resources))
	for i, res := range state.Resources {
		stateIndex[res.Address()] = i
	}

	// Creates/updates run first in dependency order, then deletes in
	// reverse dependency order.
	var createUpdates, deletes []*ir.ResourceChange
	for _, change := range plan.Changes {
		if change.Action == ir.ActionDelete {
			deletes = append(deletes, change)
		} else {
			createUpdates = append(createUpdates, change)
		}
	}

	var errs []error
	if len(createUpdates) > 0 {
		errs = append(errs, e.runGroup(ctx, createUpdates, forwardDeps(createUpdates), state, stateIndex, &mu, opts, result)...)
	}
	if len(deletes) > 0 {
		errs = append(errs, e.runGroup(ctx, deletes, deleteDeps(deletes, state), state, stateIndex, &mu, opts, result)...)
	}

	if len(result.Succeeded) > 0 {
		state.Serial++
		// Stack outputs may reference resource attributes that only exist
		// after the resources are applied.
		if outputs, ok := resolveReferences(plan.Outputs, state).(map[string]any); ok {
			state.Outputs = outputs
		} else {
			state.Outputs = plan.Outputs
		}
	}

	sort.Strings(result.Succeeded)
	sort.Strings(result.Failed)
	sort.Strings(result.Skipped)

	if len(errs) > 0 {
		return state, result, fmt.Errorf("%d resource(s) failed: %w", len(errs), errors.Join(errs...))
	}
	if err := ctx.Err(); err != nil {
		return state, result, fmt.Errorf("apply cancelled: %w", err)
	}
	return state, result, nil
}

// forwardDeps maps each change to the in-group addresses it must wait for:
// its declared dependencies and ref:// targets.
func forwardDeps(changes []*ir.ResourceChange) map[string]map[string]bool {
	inGroup := make(map[string]bool, len(changes))
	for _, c := range changes {
		inGroup[c.Address] = true
	}

	deps := make(map[string]map[string]bool, len(changes))
	for _, c := range changes {
		deps[c.Address] = make(map[string]bool)
		if c.Desired == nil {
			continue
		}
		for _, dep := range dependenciesOf(c.Desired) {
			if inGroup[dep] {
				deps[c.Address][dep] = true
			}
		}
	}
	return deps
}

// deleteDeps inverts the edges: deleting X must wait for the deletes of
// everything that depends on X.
func deleteDeps(changes []*ir.ResourceChange, state *ir.State) map[string]map[string]bool {
	inGroup := make(map[string]bool, len(changes))
	for _, c := range changes {
		inGroup[c.Address] = true
	}

	deps := make(map[string]map[string]bool, len(changes))
	for _, c := range changes {
		deps[c.Address] = make(map[string]bool)
	}
	for _, res := range state.Resources {
		if !inGroup[res.Address()] {
			continue
		}
		for _, dep := range res.Dependencies {
			if inGroup[dep] {
				// res depends on dep, so dep's delete waits for res's.
				deps[dep][res.Address()] = true
			}
		}
	}
	return deps
}

// dependenciesOf returns the dependency addresses of a declared resource:
// explicit depends_on plus ref:// targets.
func dependenciesOf(res *ir.Resource) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		if addr != "" && !seen[addr] {
			seen[addr] = true
			out = append(out, addr)
		}
	}
	for _, dep := range res.DependsOn {
		add(dep)
	}
	for _, ref := range ExtractRefs(res.Properties) {
		if addr, _, ok := RefAddress(ref); ok {
			add(addr)
		}
	}
	return out
}

// runGroup executes one group of changes with a bounded worker pool,
// honoring the dependency sets in deps. Returns the per-resource errors.
func (e *Engine) runGroup(
	ctx context.Context,
	changes []*ir.ResourceChange,
	deps map[string]map[string]bool,
	state *ir.State,
	stateIndex map[string]int,
	mu *sync.Mutex,
	opts ApplyOptions,
	result *ApplyResult,
) []error {
	emit := func(event ApplyEvent) {
		if opts.Callback != nil {
			opts.Callback(event)
		}
	}

	parallelism := e.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}

	var (
		trackMu  sync.Mutex
		trackCnd = sync.NewCond(&trackMu)
		done     = make(map[string]bool) // completed or failed or skipped
		failed   = make(map[string]bool) // failed or skipped
		errs     []error
	)

	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for _, change := range changes {
		wg.Add(1)
		go func(c *ir.ResourceChange) {
			defer wg.Done()

			// Wait until every dependency has finished, or a dependency
			// failed, or the run was cancelled.
			trackMu.Lock()
			for {
				depFailed := false
				ready := true
				for dep := range deps[c.Address] {
					if failed[dep] {
						depFailed = true
						break
					}
					if !done[dep] {
						ready = false
						break
					}
				}
				if depFailed {
					done[c.Address] = true
					failed[c.Address] = true
					trackMu.Unlock()
					mu.Lock()
					result.Skipped = append(result.Skipped, c.Address)
					mu.Unlock()
					emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "skipped"})
					trackCnd.Broadcast()
					return
				}
				if ctx.Err() != nil {
					// Cancellation: this resource never started.
					done[c.Address] = true
					failed[c.Address] = true
					trackMu.Unlock()
					mu.Lock()
					result.Skipped = append(result.Skipped, c.Address)
					mu.Unlock()
					emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "skipped"})
					trackCnd.Broadcast()
					return
				}
				if ready {
					break
				}
				trackCnd.Wait()
			}
			trackMu.Unlock()

			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "started"})

			err := e.applyChange(ctx, c, state, stateIndex, mu, opts)

			trackMu.Lock()
			done[c.Address] = true
			if err != nil {
				failed[c.Address] = true
				errs = append(errs, err)
			}
			trackMu.Unlock()
			trackCnd.Broadcast()

			if err != nil {
				mu.Lock()
				result.Failed = append(result.Failed, c.Address)
				mu.Unlock()
				emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "failed", Duration: time.Since(start), Error: err})
				return
			}
			mu.Lock()
			result.Succeeded = append(result.Succeeded, c.Address)
			mu.Unlock()
			emit(ApplyEvent{Address: c.Address, Action: c.Action, Status: "completed", Duration: time.Since(start)})
		}(change)
	}

	wg.Wait()
	return errs
}

// applyChange performs one create/update/replace/delete and commits the
// outcome into the state snapshot.
func (e *Engine) applyChange(ctx context.Context, change *ir.ResourceChange, state *ir.State, stateIndex map[string]int, mu *sync.Mutex, opts ApplyOptions) error {
	addr := change.Address
	logging.Debug("applying change", "address", addr, "action", change.Action)

	timeout := DefaultTimeout
	if change.Desired != nil && change.Desired.Timeout != "" {
		if d, err := time.ParseDuration(change.Desired.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}

	// An in-flight provider call is allowed to finish even after a
	// user-requested abort; otherwise the runtime could be left with a
	// half-applied resource. Only the per-resource timeout bounds it.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	provName := providerName(change)
	prov, err := e.registry.Get(provName)
	if err != nil {
		return fmt.Errorf("%s: provider not loaded: %s", addr, provName)
	}

	policy := opts.Retry
	if policy == nil {
		policy = DefaultRetryPolicy()
	}

	var priorOutputsJSON []byte
	mu.Lock()
	if idx, ok := stateIndex[addr]; ok {
		if outs := state.Resources[idx].Outputs; outs != nil {
			priorOutputsJSON, _ = json.Marshal(outs)
		}
	}
	mu.Unlock()

	switch change.Action {
	case ir.ActionCreate, ir.ActionUpdate, ir.ActionReplace:
		// References resolve against outputs committed by dependencies,
		// which have necessarily completed by now.
		mu.Lock()
		resolved := resolveReferences(normalizeValue(change.Desired.Properties), state)
		mu.Unlock()
		desiredJSON, err := json.Marshal(resolved)
		if err != nil {
			return fmt.Errorf("%s: encoding properties: %w", addr, err)
		}

		// A replacement vacates the old instance first; Docker resource
		// names are unique, so the new instance cannot coexist with it.
		if change.Action == ir.ActionReplace && priorOutputsJSON != nil && !createBeforeDestroy(change.Desired) {
			_, err := RetryWithBackoff(callCtx, policy, func() error {
				_, derr := prov.Delete(callCtx, &api.DeleteRequest{
					Type:        change.Desired.Type,
					Name:        change.Desired.Name,
					OutputsJSON: priorOutputsJSON,
				})
				return derr
			}, IsTransientError)
			if err != nil {
				return fmt.Errorf("replace of %s: removing prior instance: %w", addr, err)
			}
			priorOutputsJSON = nil
		}

		var resp *api.ApplyResponse
		_, err = RetryWithBackoff(callCtx, policy, func() error {
			var applyErr error
			resp, applyErr = prov.Apply(callCtx, &api.ApplyRequest{
				Type:             change.Desired.Type,
				Name:             change.Desired.Name,
				Action:           change.Action,
				DesiredJSON:      desiredJSON,
				PriorOutputsJSON: priorOutputsJSON,
			})
			return applyErr
		}, IsTransientError)
		if err != nil {
			return fmt.Errorf("apply failed for %s: %w", addr, err)
		}

		var outputs map[string]any
		if len(resp.OutputsJSON) > 0 {
			if err := json.Unmarshal(resp.OutputsJSON, &outputs); err != nil {
				return fmt.Errorf("%s: decoding provider outputs: %w", addr, err)
			}
		}

		newRes := &ir.ResourceState{
			Type:         change.Desired.Type,
			Name:         change.Desired.Name,
			Provider:     provName,
			Inputs:       change.Desired.Properties,
			Outputs:      outputs,
			Dependencies: dependenciesOf(change.Desired),
		}

		mu.Lock()
		if idx, ok := stateIndex[addr]; ok {
			state.Resources[idx] = newRes
		} else {
			stateIndex[addr] = len(state.Resources)
			state.Resources = append(state.Resources, newRes)
		}
		err = checkpoint(state, opts)
		mu.Unlock()
		if err != nil {
			return err
		}

		// create_before_destroy replacements remove the prior instance
		// only once its successor is live and committed.
		if change.Action == ir.ActionReplace && priorOutputsJSON != nil {
			_, err := RetryWithBackoff(callCtx, policy, func() error {
				_, derr := prov.Delete(callCtx, &api.DeleteRequest{
					Type:        change.Desired.Type,
					Name:        change.Desired.Name,
					OutputsJSON: priorOutputsJSON,
				})
				return derr
			}, IsTransientError)
			if err != nil {
				return fmt.Errorf("replace of %s: removing prior instance: %w", addr, err)
			}
		}
		return nil

	case ir.ActionDelete:
		var typ, name string
		if change.Prior != nil {
			typ, name = change.Prior.Type, change.Prior.Name
		}

		_, err := RetryWithBackoff(callCtx, policy, func() error {
			_, derr := prov.Delete(callCtx, &api.DeleteRequest{
				Type:        typ,
				Name:        name,
				OutputsJSON: priorOutputsJSON,
			})
			return derr
		}, IsTransientError)
		if err != nil {
			return fmt.Errorf("delete failed for %s: %w", addr, err)
		}

		mu.Lock()
		if idx, ok := stateIndex[addr]; ok {
			state.Resources = append(state.Resources[:idx], state.Resources[idx+1:]...)
			for k := range stateIndex {
				delete(stateIndex, k)
			}
			for i, res := range state.Resources {
				stateIndex[res.Address()] = i
			}
		}
		err = checkpoint(state, opts)
		mu.Unlock()
		return err
	}

	return fmt.Errorf("%s: unknown action %q", addr, change.Action)
}

func checkpoint(state *ir.State, opts ApplyOptions) error {
	if opts.Checkpoint == nil {
		return nil
	}
	if err := opts.Checkpoint(state); err != nil {
		return fmt.Errorf("checkpointing state: %w", err)
	}
	return nil
}

func providerName(change *ir.ResourceChange) string {
	if change.Desired != nil && change.Desired.Provider != "" {
		return change.Desired.Provider
	}
	if change.Prior != nil && change.Prior.Provider != "" {
		return change.Prior.Provider
	}
	return "null"
}

func createBeforeDestroy(res *ir.Resource) bool {
	return res.Lifecycle != nil && res.Lifecycle.CreateBeforeDestroy
}

// resolveReferences substitutes ref:// strings with the referenced
// resource's committed outputs (falling back to its inputs).
func resolveReferences(val any, state *ir.State) any {
	switch v := val.(type) {
	case string:
		addr, attr, ok := RefAddress(v)
		if !ok {
			return v
		}
		res := state.Resource(addr)
		if res == nil {
			return v
		}
		if out, ok := res.Outputs[attr]; ok {
			return out
		}
		if in, ok := res.Inputs[attr]; ok {
			return in
		}
		return v
	case map[string]any:
		newMap := make(map[string]any, len(v))
		for k, item := range v {
			newMap[k] = resolveReferences(item, state)
		}
		return newMap
	case []any:
		newSlice := make([]any, len(v))
		for i, item := range v {
			newSlice[i] = resolveReferences(item, state)
		}
		return newSlice
	default:
		return v
	}
}
