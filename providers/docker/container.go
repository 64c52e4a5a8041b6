package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	api "github.com/stackdock-io/stackdock/pkg/provider"
)

const stopTimeoutSeconds = 10

func (p *Provider) createContainer(ctx context.Context, req *api.ApplyRequest) (*api.ApplyResponse, error) {
	var desired ContainerSpec
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired attributes: %w", err)
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	reader, err := p.client.ImagePull(ctx, desired.Image, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", desired.Image, err)
	}
	io.Copy(io.Discard, reader)
	reader.Close()

	portBindings := nat.PortMap{}
	exposed := nat.PortSet{}
	for hostPort, containerPort := range desired.Ports {
		cp := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		exposed[cp] = struct{}{}
		portBindings[cp] = []nat.PortBinding{
			{
				HostIP:   "0.0.0.0",
				HostPort: hostPort,
			},
		}
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		Binds:        resolveBinds(desired.Volumes),
	}

	if desired.Restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name: container.RestartPolicyMode(desired.Restart),
		}
	}

	if desired.Logging != nil {
		hostConfig.LogConfig = container.LogConfig{
			Type:   desired.Logging.Driver,
			Config: desired.Logging.Options,
		}
	}

	for _, secret := range desired.Secrets {
		absPath, err := filepath.Abs(secret.File)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve secret file path: %w", err)
		}
		hostConfig.Binds = append(hostConfig.Binds, fmt.Sprintf("%s:%s:ro", absPath, secret.Target))
	}

	config := &container.Config{
		Image:        desired.Image,
		Cmd:          desired.Command,
		Env:          mapToEnvList(desired.Env),
		Labels:       desired.Labels,
		WorkingDir:   desired.WorkingDir,
		User:         desired.User,
		ExposedPorts: exposed,
	}

	if desired.Healthcheck != nil {
		test := desired.Healthcheck.Test
		if len(test) == 0 {
			test = []string{"NONE"}
		}

		interval, _ := time.ParseDuration(desired.Healthcheck.Interval)
		timeout, _ := time.ParseDuration(desired.Healthcheck.Timeout)
		startPeriod, _ := time.ParseDuration(desired.Healthcheck.StartPeriod)

		config.Healthcheck = &container.HealthConfig{
			Test:        test,
			Interval:    interval,
			Timeout:     timeout,
			StartPeriod: startPeriod,
			Retries:     desired.Healthcheck.Retries,
		}
	}

	// The container joins its first network at create time and the rest
	// after, so every listed network gets a DNS-resolvable endpoint.
	netConfig := &network.NetworkingConfig{}
	if len(desired.Networks) > 0 {
		netConfig.EndpointsConfig = map[string]*network.EndpointSettings{
			desired.Networks[0]: {},
		}
	}

	resp, err := p.client.ContainerCreate(ctx,
		config,
		hostConfig,
		netConfig,
		&v1.Platform{},
		desired.Name,
	)
	if errdefs.IsConflict(err) {
		// A crash between create and the state checkpoint can leave the
		// name held by an untracked instance of unknown configuration.
		if rmErr := p.client.ContainerRemove(ctx, desired.Name, container.RemoveOptions{Force: true}); rmErr != nil {
			return nil, fmt.Errorf("failed to remove conflicting container %s: %w", desired.Name, rmErr)
		}
		resp, err = p.client.ContainerCreate(ctx,
			config,
			hostConfig,
			netConfig,
			&v1.Platform{},
			desired.Name,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if len(desired.Networks) > 1 {
		for _, net := range desired.Networks[1:] {
			if err := p.client.NetworkConnect(ctx, net, resp.ID, &network.EndpointSettings{}); err != nil {
				return nil, fmt.Errorf("failed to connect container to network %s: %w", net, err)
			}
		}
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	outputs, _ := json.Marshal(ContainerOutputs{
		ID:    resp.ID,
		Name:  desired.Name,
		Image: desired.Image,
	})
	return &api.ApplyResponse{OutputsJSON: outputs}, nil
}

// updateContainer applies in-place mutations. Only the restart policy is
// mutable; anything else plans as a replacement.
func (p *Provider) updateContainer(ctx context.Context, req *api.ApplyRequest) (*api.ApplyResponse, error) {
	var desired ContainerSpec
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired attributes: %w", err)
	}

	var prior ContainerOutputs
	if err := json.Unmarshal(req.PriorOutputsJSON, &prior); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prior outputs: %w", err)
	}
	if prior.ID == "" {
		return p.createContainer(ctx, req)
	}

	_, err := p.client.ContainerUpdate(ctx, prior.ID, container.UpdateConfig{
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyMode(desired.Restart),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update container: %w", err)
	}

	outputs, _ := json.Marshal(prior)
	return &api.ApplyResponse{OutputsJSON: outputs}, nil
}

func (p *Provider) readContainer(ctx context.Context, req *api.ReadRequest) (*api.ReadResponse, error) {
	var prior ContainerOutputs
	if len(req.OutputsJSON) > 0 {
		if err := json.Unmarshal(req.OutputsJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior outputs: %w", err)
		}
	}
	if prior.ID == "" {
		return &api.ReadResponse{Exists: false}, nil
	}

	inspect, err := p.client.ContainerInspect(ctx, prior.ID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return &api.ReadResponse{Exists: false}, nil
		}
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	outputs, _ := json.Marshal(ContainerOutputs{
		ID:    inspect.ID,
		Name:  strings.TrimPrefix(inspect.Name, "/"),
		Image: inspect.Config.Image,
	})
	return &api.ReadResponse{Exists: true, OutputsJSON: outputs}, nil
}

func (p *Provider) deleteContainer(ctx context.Context, req *api.DeleteRequest) (*api.DeleteResponse, error) {
	var prior ContainerOutputs
	if len(req.OutputsJSON) > 0 {
		if err := json.Unmarshal(req.OutputsJSON, &prior); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prior outputs: %w", err)
		}
	}
	if prior.ID == "" {
		return &api.DeleteResponse{}, nil
	}

	timeout := stopTimeoutSeconds
	_ = p.client.ContainerStop(ctx, prior.ID, container.StopOptions{Timeout: &timeout})
	if err := p.client.ContainerRemove(ctx, prior.ID, container.RemoveOptions{Force: true}); err != nil {
		if !client.IsErrNotFound(err) {
			return nil, fmt.Errorf("failed to remove container: %w", err)
		}
	}
	return &api.DeleteResponse{}, nil
}

// resolveBinds expands relative host paths so binds survive a working
// directory change between plan and apply.
func resolveBinds(volumes []string) []string {
	var binds []string
	for _, v := range volumes {
		parts := strings.SplitN(v, ":", 2)
		if len(parts) > 0 && (strings.HasPrefix(parts[0], "./") || strings.HasPrefix(parts[0], "../")) {
			if abs, err := filepath.Abs(parts[0]); err == nil {
				parts[0] = abs
				binds = append(binds, strings.Join(parts, ":"))
				continue
			}
		}
		binds = append(binds, v)
	}
	return binds
}

func mapToEnvList(m map[string]string) []string {
	var env []string
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}
