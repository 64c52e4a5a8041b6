package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"

	api "github.com/stackdock-io/stackdock/pkg/provider"
)

func (p *Provider) createImage(ctx context.Context, req *api.ApplyRequest) (*api.ApplyResponse, error) {
	var desired ImageSpec
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired attributes: %w", err)
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	if desired.BuildContext != "" {
		tar, err := archive.TarWithOptions(desired.BuildContext, &archive.TarOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create build context tar: %w", err)
		}

		resp, err := p.client.ImageBuild(ctx, tar, types.ImageBuildOptions{
			Tags:       []string{desired.Name},
			Dockerfile: desired.Dockerfile,
			Remove:     true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build image: %w", err)
		}
		// Drain build output so the daemon does not block on the stream.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	} else {
		reader, err := p.client.ImagePull(ctx, desired.Name, image.PullOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to pull image: %w", err)
		}
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	inspect, _, err := p.client.ImageInspectWithRaw(ctx, desired.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect image: %w", err)
	}

	outputs, _ := json.Marshal(ImageOutputs{
		ID:   inspect.ID,
		Name: desired.Name,
	})
	return &api.ApplyResponse{OutputsJSON: outputs}, nil
}

func (p *Provider) readImage(ctx context.Context, req *api.ReadRequest) (*api.ReadResponse, error) {
	var prior ImageOutputs
	if len(req.OutputsJSON) > 0 {
		if err := json.Unmarshal(req.OutputsJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior outputs: %w", err)
		}
	}
	if prior.Name == "" {
		return &api.ReadResponse{Exists: false}, nil
	}

	inspect, _, err := p.client.ImageInspectWithRaw(ctx, prior.Name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return &api.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to inspect image: %w", err)
	}

	outputs, _ := json.Marshal(ImageOutputs{
		ID:   inspect.ID,
		Name: prior.Name,
	})
	return &api.ReadResponse{Exists: true, OutputsJSON: outputs}, nil
}

func (p *Provider) deleteImage(ctx context.Context, req *api.DeleteRequest) (*api.DeleteResponse, error) {
	var prior ImageOutputs
	if len(req.OutputsJSON) > 0 {
		if err := json.Unmarshal(req.OutputsJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior outputs: %w", err)
		}
	}
	if prior.ID == "" {
		return &api.DeleteResponse{}, nil
	}

	if _, err := p.client.ImageRemove(ctx, prior.ID, image.RemoveOptions{Force: true}); err != nil {
		if !client.IsErrNotFound(err) {
			return nil, fmt.Errorf("failed to remove image: %w", err)
		}
	}
	return &api.DeleteResponse{}, nil
}
