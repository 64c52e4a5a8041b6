// Package docker provisions containers, networks, volumes and images
// against the local Docker daemon.
package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/docker/docker/client"

	"github.com/stackdock-io/stackdock/internal/ir"
	api "github.com/stackdock-io/stackdock/pkg/provider"
)

type Provider struct {
	client client.APIClient
}

func New() *Provider {
	return &Provider{}
}

func (p *Provider) ensureClient() error {
	if p.client != nil {
		return nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return err
	}
	p.client = cli
	return nil
}

func (p *Provider) Configure(ctx context.Context, req *api.ConfigureRequest) (*api.ConfigureResponse, error) {
	if err := p.ensureClient(); err != nil {
		return &api.ConfigureResponse{
			Diagnostics: []api.Diagnostic{
				{
					Severity: api.DiagnosticError,
					Summary:  "Failed to create Docker client",
					Detail:   err.Error(),
				},
			},
		}, nil
	}
	return &api.ConfigureResponse{}, nil
}

// Plan diffs desired attributes against the last applied inputs. It never
// touches the daemon. Only attributes the daemon can change in place are
// planned as updates; everything else forces a replacement.
func (p *Provider) Plan(ctx context.Context, req *api.PlanRequest) (*api.PlanResponse, error) {
	if req.DesiredJSON == nil {
		return &api.PlanResponse{Action: ir.ActionDelete}, nil
	}
	if req.PriorInputsJSON == nil && req.PriorOutputsJSON == nil {
		return &api.PlanResponse{Action: ir.ActionCreate}, nil
	}

	var desired, prior map[string]any
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired attributes: %w", err)
	}
	if len(req.PriorInputsJSON) > 0 {
		if err := json.Unmarshal(req.PriorInputsJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior attributes: %w", err)
		}
	}

	changed := diffAttributes(desired, prior)
	if len(changed) == 0 {
		return &api.PlanResponse{Action: ir.ActionNoop}, nil
	}

	mutable := mutableAttributes(req.Type)
	var replace []string
	for _, attr := range changed {
		if !mutable[attr] {
			replace = append(replace, attr)
		}
	}
	if len(replace) > 0 {
		return &api.PlanResponse{
			Action:            ir.ActionReplace,
			ChangedAttributes: changed,
			ReplaceAttributes: replace,
		}, nil
	}
	return &api.PlanResponse{
		Action:            ir.ActionUpdate,
		ChangedAttributes: changed,
	}, nil
}

func (p *Provider) Apply(ctx context.Context, req *api.ApplyRequest) (*api.ApplyResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	switch req.Type {
	case "docker_container":
		if req.Action == ir.ActionUpdate {
			return p.updateContainer(ctx, req)
		}
		return p.createContainer(ctx, req)
	case "docker_network":
		return p.createNetwork(ctx, req)
	case "docker_volume":
		return p.createVolume(ctx, req)
	case "docker_image":
		return p.createImage(ctx, req)
	}
	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) Read(ctx context.Context, req *api.ReadRequest) (*api.ReadResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	switch req.Type {
	case "docker_container":
		return p.readContainer(ctx, req)
	case "docker_network":
		return p.readNetwork(ctx, req)
	case "docker_volume":
		return p.readVolume(ctx, req)
	case "docker_image":
		return p.readImage(ctx, req)
	}
	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

func (p *Provider) Delete(ctx context.Context, req *api.DeleteRequest) (*api.DeleteResponse, error) {
	if err := p.ensureClient(); err != nil {
		return nil, err
	}

	switch req.Type {
	case "docker_container":
		return p.deleteContainer(ctx, req)
	case "docker_network":
		return p.deleteNetwork(ctx, req)
	case "docker_volume":
		return p.deleteVolume(ctx, req)
	case "docker_image":
		return p.deleteImage(ctx, req)
	}
	return nil, fmt.Errorf("unknown resource type: %s", req.Type)
}

// mutableAttributes lists what the daemon can change on a live resource.
// Networks, volumes and images have no in-place mutations at all.
func mutableAttributes(resourceType string) map[string]bool {
	switch resourceType {
	case "docker_container":
		return map[string]bool{"restart": true}
	default:
		return nil
	}
}

// diffAttributes returns the sorted top-level attribute names whose values
// differ between desired and prior. Values compare by canonical JSON.
func diffAttributes(desired, prior map[string]any) []string {
	keys := make(map[string]bool, len(desired)+len(prior))
	for k := range desired {
		keys[k] = true
	}
	for k := range prior {
		keys[k] = true
	}

	var changed []string
	for k := range keys {
		dv, dok := desired[k]
		pv, pok := prior[k]
		if dok != pok {
			changed = append(changed, k)
			continue
		}
		db, _ := json.Marshal(dv)
		pb, _ := json.Marshal(pv)
		if !bytes.Equal(db, pb) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}
