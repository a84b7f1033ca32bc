package docker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types"
)

// ContainerUsage is one container's resource usage at a point in time.
// CPU is percent of one core, memory is MiB, network counters are cumulative
// bytes summed across interfaces.
type ContainerUsage struct {
	CPUPercent float64
	MemoryMiB  float64
	RxBytes    float64
	TxBytes    float64
}

// Stats reads a one-shot stats sample for the container.
func (c *Client) Stats(ctx context.Context, containerID string) (ContainerUsage, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return ContainerUsage{}, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.ContainerStats(ctx, containerID, false)
	c.updateHealth(err)
	if err != nil {
		return ContainerUsage{}, fmt.Errorf("stats for %s: %w", containerID, err)
	}
	defer resp.Body.Close()

	var raw types.StatsJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return ContainerUsage{}, fmt.Errorf("decode stats for %s: %w", containerID, err)
	}
	return calculateUsage(&raw), nil
}

// calculateUsage applies the engine's own CPU formula: usage delta over system
// delta, scaled by online CPUs. Zero deltas yield zero, never NaN.
func calculateUsage(raw *types.StatsJSON) ContainerUsage {
	var u ContainerUsage

	cpuDelta := float64(raw.CPUStats.CPUUsage.TotalUsage) - float64(raw.PreCPUStats.CPUUsage.TotalUsage)
	sysDelta := float64(raw.CPUStats.SystemUsage) - float64(raw.PreCPUStats.SystemUsage)
	onlineCPUs := float64(raw.CPUStats.OnlineCPUs)
	if onlineCPUs == 0 {
		onlineCPUs = float64(len(raw.CPUStats.CPUUsage.PercpuUsage))
	}
	if cpuDelta > 0 && sysDelta > 0 && onlineCPUs > 0 {
		u.CPUPercent = cpuDelta / sysDelta * onlineCPUs * 100
	}

	u.MemoryMiB = float64(raw.MemoryStats.Usage) / (1024 * 1024)

	for _, netw := range raw.Networks {
		u.RxBytes += float64(netw.RxBytes)
		u.TxBytes += float64(netw.TxBytes)
	}
	return u
}
