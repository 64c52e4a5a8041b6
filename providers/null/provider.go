// Package null implements a resource with no backing object, useful as a
// synchronization point and in tests.
package null

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stackdock-io/stackdock/internal/ir"
	api "github.com/stackdock-io/stackdock/pkg/provider"
)

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

// Spec is the attribute schema of null_resource. Any change to the triggers
// map forces a replacement.
type Spec struct {
	Triggers map[string]string `json:"triggers"`
}

type Outputs struct {
	ID       string            `json:"id"`
	Triggers map[string]string `json:"triggers"`
}

func (p *Provider) Configure(ctx context.Context, req *api.ConfigureRequest) (*api.ConfigureResponse, error) {
	return &api.ConfigureResponse{}, nil
}

func (p *Provider) Plan(ctx context.Context, req *api.PlanRequest) (*api.PlanResponse, error) {
	if req.DesiredJSON == nil {
		return &api.PlanResponse{Action: ir.ActionDelete}, nil
	}

	var desired Spec
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired attributes: %w", err)
	}

	if req.PriorInputsJSON == nil && req.PriorOutputsJSON == nil {
		return &api.PlanResponse{Action: ir.ActionCreate}, nil
	}

	var prior Spec
	if len(req.PriorInputsJSON) > 0 {
		if err := json.Unmarshal(req.PriorInputsJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior attributes: %w", err)
		}
	}

	if !equal(desired.Triggers, prior.Triggers) {
		return &api.PlanResponse{
			Action:            ir.ActionReplace,
			ChangedAttributes: []string{"triggers"},
			ReplaceAttributes: []string{"triggers"},
		}, nil
	}
	return &api.PlanResponse{Action: ir.ActionNoop}, nil
}

func (p *Provider) Apply(ctx context.Context, req *api.ApplyRequest) (*api.ApplyResponse, error) {
	var desired Spec
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired attributes: %w", err)
	}

	outputs, _ := json.Marshal(Outputs{
		ID:       fmt.Sprintf("null-%s", req.Name),
		Triggers: desired.Triggers,
	})
	return &api.ApplyResponse{OutputsJSON: outputs}, nil
}

func (p *Provider) Read(ctx context.Context, req *api.ReadRequest) (*api.ReadResponse, error) {
	return &api.ReadResponse{
		Exists:      len(req.OutputsJSON) > 0,
		OutputsJSON: req.OutputsJSON,
	}, nil
}

func (p *Provider) Delete(ctx context.Context, req *api.DeleteRequest) (*api.DeleteResponse, error) {
	return &api.DeleteResponse{}, nil
}

func equal(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
