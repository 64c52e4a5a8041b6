package docker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	api "github.com/stackdock-io/stackdock/pkg/provider"
)

func (p *Provider) createNetwork(ctx context.Context, req *api.ApplyRequest) (*api.ApplyResponse, error) {
	var desired NetworkSpec
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired attributes: %w", err)
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	resp, err := p.client.NetworkCreate(ctx, desired.Name, network.CreateOptions{
		Driver:   desired.Driver,
		Internal: desired.Internal,
		Labels:   desired.Labels,
	})
	if err != nil {
		if errdefs.IsConflict(err) {
			// A network with this name already exists; adopt it instead
			// of failing the create.
			inspect, ierr := p.client.NetworkInspect(ctx, desired.Name, network.InspectOptions{})
			if ierr != nil {
				return nil, fmt.Errorf("failed to inspect existing network %s: %w", desired.Name, ierr)
			}
			outputs, _ := json.Marshal(NetworkOutputs{
				ID:     inspect.ID,
				Name:   inspect.Name,
				Driver: inspect.Driver,
			})
			return &api.ApplyResponse{OutputsJSON: outputs}, nil
		}
		return nil, fmt.Errorf("failed to create network: %w", err)
	}

	outputs, _ := json.Marshal(NetworkOutputs{
		ID:     resp.ID,
		Name:   desired.Name,
		Driver: desired.Driver,
	})
	return &api.ApplyResponse{OutputsJSON: outputs}, nil
}

func (p *Provider) readNetwork(ctx context.Context, req *api.ReadRequest) (*api.ReadResponse, error) {
	var prior NetworkOutputs
	if len(req.OutputsJSON) > 0 {
		if err := json.Unmarshal(req.OutputsJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior outputs: %w", err)
		}
	}
	if prior.ID == "" {
		return &api.ReadResponse{Exists: false}, nil
	}

	inspect, err := p.client.NetworkInspect(ctx, prior.ID, network.InspectOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return &api.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to inspect network: %w", err)
	}

	outputs, _ := json.Marshal(NetworkOutputs{
		ID:     inspect.ID,
		Name:   inspect.Name,
		Driver: inspect.Driver,
	})
	return &api.ReadResponse{Exists: true, OutputsJSON: outputs}, nil
}

func (p *Provider) deleteNetwork(ctx context.Context, req *api.DeleteRequest) (*api.DeleteResponse, error) {
	var prior NetworkOutputs
	if len(req.OutputsJSON) > 0 {
		if err := json.Unmarshal(req.OutputsJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior outputs: %w", err)
		}
	}
	if prior.ID == "" {
		return &api.DeleteResponse{}, nil
	}

	if err := p.client.NetworkRemove(ctx, prior.ID); err != nil {
		if !client.IsErrNotFound(err) {
			return nil, fmt.Errorf("failed to remove network: %w", err)
		}
	}
	return &api.DeleteResponse{}, nil
}
