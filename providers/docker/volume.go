package docker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	api "github.com/stackdock-io/stackdock/pkg/provider"
)

func (p *Provider) createVolume(ctx context.Context, req *api.ApplyRequest) (*api.ApplyResponse, error) {
	var desired VolumeSpec
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired attributes: %w", err)
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	vol, err := p.client.VolumeCreate(ctx, volume.CreateOptions{
		Name:   desired.Name,
		Driver: desired.Driver,
		Labels: desired.Labels,
	})
	if err != nil {
		if !errdefs.IsConflict(err) {
			return nil, fmt.Errorf("failed to create volume: %w", err)
		}
		// A volume with this name already exists; adopt it.
		vol, err = p.client.VolumeInspect(ctx, desired.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect existing volume %s: %w", desired.Name, err)
		}
	}

	outputs, _ := json.Marshal(VolumeOutputs{
		Name:       vol.Name,
		Driver:     vol.Driver,
		Mountpoint: vol.Mountpoint,
	})
	return &api.ApplyResponse{OutputsJSON: outputs}, nil
}

func (p *Provider) readVolume(ctx context.Context, req *api.ReadRequest) (*api.ReadResponse, error) {
	var prior VolumeOutputs
	if len(req.OutputsJSON) > 0 {
		if err := json.Unmarshal(req.OutputsJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior outputs: %w", err)
		}
	}
	if prior.Name == "" {
		return &api.ReadResponse{Exists: false}, nil
	}

	vol, err := p.client.VolumeInspect(ctx, prior.Name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return &api.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to inspect volume: %w", err)
	}

	outputs, _ := json.Marshal(VolumeOutputs{
		Name:       vol.Name,
		Driver:     vol.Driver,
		Mountpoint: vol.Mountpoint,
	})
	return &api.ReadResponse{Exists: true, OutputsJSON: outputs}, nil
}

func (p *Provider) deleteVolume(ctx context.Context, req *api.DeleteRequest) (*api.DeleteResponse, error) {
	var prior VolumeOutputs
	if len(req.OutputsJSON) > 0 {
		if err := json.Unmarshal(req.OutputsJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior outputs: %w", err)
		}
	}
	if prior.Name == "" {
		return &api.DeleteResponse{}, nil
	}

	if err := p.client.VolumeRemove(ctx, prior.Name, true); err != nil {
		if !client.IsErrNotFound(err) {
			return nil, fmt.Errorf("failed to remove volume: %w", err)
		}
	}
	return &api.DeleteResponse{}, nil
}
