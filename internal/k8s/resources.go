package k8s

import (
	"context"
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/fleetglass/fleetglass-backend/internal/models"
)

// Namespaces lists the cluster's namespaces.
func (c *Client) Namespaces(ctx context.Context) ([]models.Namespace, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	list, err := doWithRetryValue(ctx, defaultRetryAttempts, func() (*corev1.NamespaceList, error) {
		return c.Clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	})
	c.updateHealth(err)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}

	out := make([]models.Namespace, 0, len(list.Items))
	for _, ns := range list.Items {
		out = append(out, models.Namespace{
			ClusterID:   c.ClusterID,
			Name:        ns.Name,
			Phase:       string(ns.Status.Phase),
			FirstSeenAt: ns.CreationTimestamp.Time,
		})
	}
	return out, nil
}

// Pods lists pods in the given namespace, or in all namespaces when empty.
func (c *Client) Pods(ctx context.Context, namespace string) ([]models.Pod, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	list, err := doWithRetryValue(ctx, defaultRetryAttempts, func() (*corev1.PodList, error) {
		return c.Clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	})
	c.updateHealth(err)
	if err != nil {
		return nil, fmt.Errorf("list pods: %w", err)
	}

	out := make([]models.Pod, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, c.podModel(&list.Items[i]))
	}
	return out, nil
}

// Pod fetches one pod by namespace and name.
func (c *Client) Pod(ctx context.Context, namespace, name string) (models.Pod, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return models.Pod{}, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	pod, err := doWithRetryValue(ctx, defaultRetryAttempts, func() (*corev1.Pod, error) {
		return c.Clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	})
	c.updateHealth(err)
	if err != nil {
		return models.Pod{}, fmt.Errorf("get pod %s/%s: %w", namespace, name, err)
	}
	return c.podModel(pod), nil
}

func (c *Client) podModel(pod *corev1.Pod) models.Pod {
	restarts := 0
	ready := 0
	for _, cs := range pod.Status.ContainerStatuses {
		restarts += int(cs.RestartCount)
		if cs.Ready {
			ready++
		}
	}
	image := ""
	if len(pod.Spec.Containers) > 0 {
		image = pod.Spec.Containers[0].Image
	}
	return models.Pod{
		ID:             string(pod.UID),
		ClusterID:      c.ClusterID,
		Namespace:      pod.Namespace,
		Name:           pod.Name,
		Status:         string(pod.Status.Phase),
		NodeName:       pod.Spec.NodeName,
		IP:             pod.Status.PodIP,
		Image:          image,
		ContainerCount: len(pod.Spec.Containers),
		ReadyCount:     ready,
		RestartCount:   restarts,
		CreatedAt:      pod.CreationTimestamp.Time,
	}
}

// Events lists events in the given namespace, or in all namespaces when empty.
func (c *Client) Events(ctx context.Context, namespace string) ([]models.Event, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	list, err := doWithRetryValue(ctx, defaultRetryAttempts, func() (*corev1.EventList, error) {
		return c.Clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{})
	})
	c.updateHealth(err)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	out := make([]models.Event, 0, len(list.Items))
	for _, ev := range list.Items {
		count := int(ev.Count)
		if count < 1 {
			count = 1
		}
		first := ev.FirstTimestamp.Time
		if first.IsZero() {
			first = ev.EventTime.Time
		}
		if first.IsZero() {
			first = ev.CreationTimestamp.Time
		}
		last := ev.LastTimestamp.Time
		if last.IsZero() {
			last = first
		}
		out = append(out, models.Event{
			ID:             string(ev.UID),
			ClusterID:      c.ClusterID,
			Namespace:      ev.Namespace,
			InvolvedKind:   ev.InvolvedObject.Kind,
			InvolvedName:   ev.InvolvedObject.Name,
			Type:           ev.Type,
			Reason:         ev.Reason,
			Message:        ev.Message,
			Count:          count,
			FirstTimestamp: first,
			LastTimestamp:  last,
		})
	}
	return out, nil
}

// PodLogs reads the last tail lines of one container's logs. container may be
// empty for single-container pods.
func (c *Client) PodLogs(ctx context.Context, namespace, pod, container string, tail int) (string, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return "", err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	tailLines := int64(tail)
	opts := &corev1.PodLogOptions{TailLines: &tailLines}
	if container != "" {
		opts.Container = container
	}

	stream, err := c.Clientset.CoreV1().Pods(namespace).GetLogs(pod, opts).Stream(ctx)
	c.updateHealth(err)
	if err != nil {
		return "", fmt.Errorf("stream logs for %s/%s: %w", namespace, pod, err)
	}
	defer stream.Close()

	data, err := io.ReadAll(stream)
	if err != nil {
		return "", fmt.Errorf("read logs for %s/%s: %w", namespace, pod, err)
	}
	return string(data), nil
}

// PodUsage returns current per-pod CPU (percent of one core) and memory (MiB)
// from the metrics API. Pods with all-zero usage are skipped. The metrics API
// exposes no network counters, so pods carry none.
func (c *Client) PodUsage(ctx context.Context) (cpu, memory []models.EntityValue, err error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return nil, nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	list, err := c.Metrics.MetricsV1beta1().PodMetricses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	c.updateHealth(err)
	if err != nil {
		return nil, nil, fmt.Errorf("list pod metrics: %w", err)
	}

	for _, pm := range list.Items {
		var cpuCores, memBytes float64
		for _, container := range pm.Containers {
			cpuCores += container.Usage.Cpu().AsApproximateFloat64()
			memBytes += container.Usage.Memory().AsApproximateFloat64()
		}
		if cpuCores > 0 {
			cpu = append(cpu, models.EntityValue{Name: pm.Name, Value: cpuCores * 100})
		}
		if memBytes > 0 {
			memory = append(memory, models.EntityValue{Name: pm.Name, Value: memBytes / (1024 * 1024)})
		}
	}
	return cpu, memory, nil
}
