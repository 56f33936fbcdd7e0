// Package stage defines the contract the pipeline orchestrator needs from
// each stage.
package stage

import "context"

// Handler describes one pipeline stage. Prepare performs cheap validation of
// the stage's preconditions (missing inputs are orchestrator-fatal); Execute
// does the work. Per-accession failures inside Execute are recorded and
// absorbed; only a failure of the stage itself is returned.
type Handler interface {
	Name() string
	Prepare(context.Context) error
	Execute(context.Context) error
	HealthCheck(context.Context) Health
}

// Health summarizes the readiness of a pipeline stage.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
