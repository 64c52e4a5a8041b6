// Package random generates stable secret values. A generated value is
// written to state once and reused on every later run; it only rotates when
// the declared policy changes.
package random

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/stackdock-io/stackdock/internal/ir"
	"github.com/stackdock-io/stackdock/internal/secrets"
	api "github.com/stackdock-io/stackdock/pkg/provider"
)

type Provider struct{}

func New() *Provider {
	return &Provider{}
}

// PasswordSpec is the attribute schema of random_password resources.
type PasswordSpec struct {
	Length          int    `json:"length"`
	Upper           *bool  `json:"upper"`
	Lower           *bool  `json:"lower"`
	Numeric         *bool  `json:"numeric"`
	Special         bool   `json:"special"`
	OverrideSpecial string `json:"override_special"`

	// Seed makes the value a deterministic function of (seed, name), for
	// stacks that must reproduce identical credentials across state files.
	Seed string `json:"seed"`
}

type PasswordOutputs struct {
	Value  string `json:"value"`
	Length int    `json:"length"`
}

func (p *Provider) Configure(ctx context.Context, req *api.ConfigureRequest) (*api.ConfigureResponse, error) {
	return &api.ConfigureResponse{}, nil
}

// Plan returns NOOP whenever the policy is unchanged, so an existing value
// is never regenerated by a routine apply.
func (p *Provider) Plan(ctx context.Context, req *api.PlanRequest) (*api.PlanResponse, error) {
	if req.DesiredJSON == nil {
		return &api.PlanResponse{Action: ir.ActionDelete}, nil
	}
	if req.PriorInputsJSON == nil && req.PriorOutputsJSON == nil {
		return &api.PlanResponse{
			Action:              ir.ActionCreate,
			SensitiveAttributes: []string{"value"},
		}, nil
	}

	changed := changedAttributes(req.DesiredJSON, req.PriorInputsJSON)
	if len(changed) == 0 {
		return &api.PlanResponse{Action: ir.ActionNoop}, nil
	}

	// A policy change invalidates the stored value.
	return &api.PlanResponse{
		Action:              ir.ActionReplace,
		ChangedAttributes:   changed,
		ReplaceAttributes:   changed,
		SensitiveAttributes: []string{"value"},
	}, nil
}

// changedAttributes returns the sorted attribute names whose values differ
// between two JSON attribute maps.
func changedAttributes(desiredJSON, priorJSON []byte) []string {
	var desired, prior map[string]any
	json.Unmarshal(desiredJSON, &desired)
	json.Unmarshal(priorJSON, &prior)

	keys := make(map[string]bool, len(desired)+len(prior))
	for k := range desired {
		keys[k] = true
	}
	for k := range prior {
		keys[k] = true
	}

	var changed []string
	for k := range keys {
		db, _ := json.Marshal(desired[k])
		pb, _ := json.Marshal(prior[k])
		if !bytes.Equal(db, pb) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

func (p *Provider) Apply(ctx context.Context, req *api.ApplyRequest) (*api.ApplyResponse, error) {
	var spec PasswordSpec
	if err := json.Unmarshal(req.DesiredJSON, &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired attributes: %w", err)
	}

	switch req.Type {
	case "random_password":
	default:
		return nil, fmt.Errorf("unknown resource type: %s", req.Type)
	}

	policy := policyFromSpec(spec)

	var value string
	var err error
	if spec.Seed != "" {
		value, err = secrets.Derive(spec.Seed, req.Name, policy)
	} else {
		value, err = secrets.Generate(policy)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to generate value: %w", err)
	}

	outputs, _ := json.Marshal(PasswordOutputs{
		Value:  value,
		Length: len(value),
	})
	return &api.ApplyResponse{OutputsJSON: outputs}, nil
}

// Read reports the stored value as-is. Generated secrets have no live
// backing object to drift from.
func (p *Provider) Read(ctx context.Context, req *api.ReadRequest) (*api.ReadResponse, error) {
	return &api.ReadResponse{
		Exists:      len(req.OutputsJSON) > 0,
		OutputsJSON: req.OutputsJSON,
	}, nil
}

func (p *Provider) Delete(ctx context.Context, req *api.DeleteRequest) (*api.DeleteResponse, error) {
	return &api.DeleteResponse{}, nil
}

func policyFromSpec(spec PasswordSpec) secrets.Policy {
	policy := secrets.DefaultPolicy()
	if spec.Length > 0 {
		policy.Length = spec.Length
	}
	if spec.Upper != nil {
		policy.Upper = *spec.Upper
	}
	if spec.Lower != nil {
		policy.Lower = *spec.Lower
	}
	if spec.Numeric != nil {
		policy.Numeric = *spec.Numeric
	}
	policy.Special = spec.Special
	policy.OverrideSpecial = spec.OverrideSpecial
	return policy
}
