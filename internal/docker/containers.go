package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	containertypes "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"

	"github.com/fleetglass/fleetglass-backend/internal/models"
)

// Containers lists all containers on the host, including stopped ones, and
// inspects each for restart count, addresses and port bindings.
func (c *Client) Containers(ctx context.Context) ([]models.DockerContainer, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	list, err := c.api.ContainerList(ctx, containertypes.ListOptions{All: true})
	c.updateHealth(err)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	out := make([]models.DockerContainer, 0, len(list))
	for _, summary := range list {
		inspect, err := c.api.ContainerInspect(ctx, summary.ID)
		if err != nil {
			// The container may have been removed between list and inspect;
			// skip it, the next cycle sees the final state.
			continue
		}
		out = append(out, c.containerModel(inspect))
	}
	return out, nil
}

// Container inspects a single container by runtime id. Used by the targeted
// resync path after an action.
func (c *Client) Container(ctx context.Context, containerID string) (models.DockerContainer, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return models.DockerContainer{}, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	inspect, err := c.api.ContainerInspect(ctx, containerID)
	c.updateHealth(err)
	if err != nil {
		return models.DockerContainer{}, fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	return c.containerModel(inspect), nil
}

func (c *Client) containerModel(inspect types.ContainerJSON) models.DockerContainer {
	m := models.DockerContainer{
		ID:           inspect.ID,
		HostID:       c.HostID,
		ContainerID:  inspect.ID,
		Name:         strings.TrimPrefix(inspect.Name, "/"),
		RestartCount: inspect.RestartCount,
	}
	if inspect.Config != nil {
		m.Image = inspect.Config.Image
	}
	if inspect.State != nil {
		m.RawState = inspect.State.Status
		m.Status = inspect.State.Status
		if t, err := time.Parse(time.RFC3339Nano, inspect.State.StartedAt); err == nil && t.Unix() > 0 {
			m.StartedAt = t
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, inspect.Created); err == nil {
		m.CreatedAt = t
	}
	if inspect.NetworkSettings != nil {
		m.IPAddress = inspect.NetworkSettings.IPAddress
		if m.IPAddress == "" {
			for _, netw := range inspect.NetworkSettings.Networks {
				if netw.IPAddress != "" {
					m.IPAddress = netw.IPAddress
					break
				}
			}
		}
		m.Ports = renderPorts(inspect.NetworkSettings.Ports)
	}
	return m
}

// renderPorts flattens a port map into stable, human-readable strings:
// "0.0.0.0:8080->80/tcp" for bound ports, "80/tcp" for exposed-only ones.
func renderPorts(ports nat.PortMap) []string {
	if len(ports) == 0 {
		return nil
	}
	out := make([]string, 0, len(ports))
	for port, bindings := range ports {
		if len(bindings) == 0 {
			out = append(out, string(port))
			continue
		}
		for _, b := range bindings {
			hostIP := b.HostIP
			if hostIP == "" {
				hostIP = "0.0.0.0"
			}
			out = append(out, fmt.Sprintf("%s:%s->%s", hostIP, b.HostPort, port))
		}
	}
	sort.Strings(out)
	return out
}

// Logs reads the last tail lines of a container's stdout+stderr. The stream
// is demultiplexed unless the container runs with a TTY.
func (c *Client) Logs(ctx context.Context, containerID string, tail int) (string, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return "", err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	inspect, err := c.api.ContainerInspect(ctx, containerID)
	if err != nil {
		c.updateHealth(err)
		return "", fmt.Errorf("inspect container %s: %w", containerID, err)
	}

	reader, err := c.api.ContainerLogs(ctx, containerID, containertypes.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       strconv.Itoa(tail),
	})
	c.updateHealth(err)
	if err != nil {
		return "", fmt.Errorf("read logs for %s: %w", containerID, err)
	}
	defer reader.Close()

	if inspect.Config != nil && inspect.Config.Tty {
		data, err := io.ReadAll(reader)
		if err != nil {
			return "", fmt.Errorf("read logs for %s: %w", containerID, err)
		}
		return string(data), nil
	}

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
		return "", fmt.Errorf("demultiplex logs for %s: %w", containerID, err)
	}
	return buf.String(), nil
}

// Do performs one lifecycle action on a container. Transition validity is the
// dispatcher's concern; this only rejects unknown action names.
func (c *Client) Do(ctx context.Context, containerID, action string) error {
	if err := c.waitRateLimit(ctx); err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var err error
	switch action {
	case models.ActionStart:
		err = c.api.ContainerStart(ctx, containerID, containertypes.StartOptions{})
	case models.ActionStop:
		err = c.api.ContainerStop(ctx, containerID, containertypes.StopOptions{})
	case models.ActionRestart:
		err = c.api.ContainerRestart(ctx, containerID, containertypes.StopOptions{})
	case models.ActionPause:
		err = c.api.ContainerPause(ctx, containerID)
	case models.ActionUnpause:
		err = c.api.ContainerUnpause(ctx, containerID)
	case models.ActionKill:
		err = c.api.ContainerKill(ctx, containerID, "")
	case models.ActionRemove:
		err = c.api.ContainerRemove(ctx, containerID, containertypes.RemoveOptions{})
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	c.updateHealth(err)
	if err != nil {
		return fmt.Errorf("%s container %s: %w", action, containerID, err)
	}
	return nil
}
