package models

import "time"

// Metric kinds carried in a stream frame.
const (
	MetricCPU       = "cpu"
	MetricMemory    = "memory"
	MetricNetworkRx = "network_rx"
	MetricNetworkTx = "network_tx"
)

// EntityValue is one (entity name, value) pair inside a metric series.
type EntityValue struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// MetricFrame is one streamed sample: the top entities per metric kind at one
// instant. CPU is percent of one core, memory is MiB, network counters are
// cumulative bytes. Frames live only in per-subscriber rings.
type MetricFrame struct {
	Timestamp time.Time     `json:"timestamp"`
	CPU       []EntityValue `json:"cpu"`
	Memory    []EntityValue `json:"memory"`
	NetworkRx []EntityValue `json:"network_rx"`
	NetworkTx []EntityValue `json:"network_tx"`
}
