// Package runtime wraps the container runtime operations the worker manager
// needs for the tunnel and measurement-task containers (C6): create, remove,
// exec, and a health probe run inside a container's network namespace.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/testcontainers/testcontainers-go"
	tcexec "github.com/testcontainers/testcontainers-go/exec"
)

// EgressDescriptor is the JSON body returned by the Mullvad geo-IP echo
// service, the ground truth for which vantage point a tunnel is egressing
// from.
type EgressDescriptor struct {
	IP           string `json:"ip"`
	City         string `json:"city"`
	Country      string `json:"country"`
	Organization string `json:"organization"`
}

// TunnelSpec describes how to start a WireGuard tunnel container with a
// single active configuration file bind-mounted in.
type TunnelSpec struct {
	Image         string
	ConfigHostDir string // host path containing the active config file
	Name          string
}

// StartTunnel creates and starts a tunnel container from spec. The caller is
// responsible for Terminate.
func StartTunnel(ctx context.Context, spec TunnelSpec) (testcontainers.Container, error) {
	req := testcontainers.ContainerRequest{
		Image: spec.Image,
		Name:  spec.Name,
		CapAdd: []string{"NET_ADMIN"},
		Binds:  []string{spec.ConfigHostDir + ":/etc/wireguard:ro"},
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start tunnel container: %w", err)
	}
	return c, nil
}

// TaskSpec describes a one-shot measurement task container attached to a
// tunnel's network namespace.
type TaskSpec struct {
	Image         string
	Name          string
	NetworkMode   string // "container:<tunnel-container-id>"
	WorkingDir    string // host path bind-mounted for output files
	ContainerArgs []string
}

// StartTask creates and starts a measurement task container. The caller
// waits for it to exit, then calls Terminate.
func StartTask(ctx context.Context, spec TaskSpec) (testcontainers.Container, error) {
	req := testcontainers.ContainerRequest{
		Image:       spec.Image,
		Name:        spec.Name,
		Cmd:         spec.ContainerArgs,
		NetworkMode: dockercontainer.NetworkMode(spec.NetworkMode),
		Binds:       []string{spec.WorkingDir + ":/work"},
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start task container: %w", err)
	}
	return c, nil
}

// Exec runs cmd inside c and returns its exit code and combined output.
func Exec(ctx context.Context, c testcontainers.Container, cmd []string) (int, string, error) {
	code, reader, err := c.Exec(ctx, cmd, tcexec.Multiplexed())
	if err != nil {
		return 0, "", fmt.Errorf("exec %v: %w", cmd, err)
	}
	var buf bytes.Buffer
	if reader != nil {
		if _, err := io.Copy(&buf, reader); err != nil {
			return code, buf.String(), fmt.Errorf("read exec output: %w", err)
		}
	}
	return code, buf.String(), nil
}

// HealthcheckExec runs the tunnel healthcheck (curl against the Mullvad
// geo-IP echo service) inside c's namespace and parses the egress
// descriptor. A non-zero exit or unparsable body means the tunnel is not UP.
func HealthcheckExec(ctx context.Context, c testcontainers.Container) (EgressDescriptor, error) {
	code, out, err := Exec(ctx, c, []string{"curl", "-sf", "https://am.i.mullvad.net/json"})
	if err != nil {
		return EgressDescriptor{}, err
	}
	if code != 0 {
		return EgressDescriptor{}, fmt.Errorf("healthcheck exited %d", code)
	}
	var desc EgressDescriptor
	if err := json.Unmarshal([]byte(out), &desc); err != nil {
		return EgressDescriptor{}, fmt.Errorf("parse egress descriptor: %w", err)
	}
	return desc, nil
}

// Terminate stops and removes c, best-effort.
func Terminate(ctx context.Context, c testcontainers.Container) error {
	if c == nil {
		return nil
	}
	return c.Terminate(ctx)
}

// Wait blocks until c's process exits, returning the exit code.
func Wait(ctx context.Context, c testcontainers.Container) (int, error) {
	for {
		state, err := c.State(ctx)
		if err != nil {
			return 0, fmt.Errorf("inspect container state: %w", err)
		}
		if !state.Running {
			return state.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
