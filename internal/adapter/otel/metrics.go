package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "helmsman"

// Metrics holds all Helmsman metric instruments.
type Metrics struct {
	SessionsStarted  metric.Int64Counter
	SessionsQueued   metric.Int64Counter
	SessionsPromoted metric.Int64Counter
	QueueRejections  metric.Int64Counter
	TurnsCompleted   metric.Int64Counter
	TurnCost         metric.Float64Histogram
	TurnDuration     metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.SessionsStarted, err = meter.Int64Counter("helmsman.sessions.started",
		metric.WithDescription("Number of agent sessions started"))
	if err != nil {
		return nil, err
	}

	m.SessionsQueued, err = meter.Int64Counter("helmsman.sessions.queued",
		metric.WithDescription("Number of session requests placed in the wait queue"))
	if err != nil {
		return nil, err
	}

	m.SessionsPromoted, err = meter.Int64Counter("helmsman.sessions.promoted",
		metric.WithDescription("Number of queued sessions promoted to running"))
	if err != nil {
		return nil, err
	}

	m.QueueRejections, err = meter.Int64Counter("helmsman.queue.rejections",
		metric.WithDescription("Number of session requests rejected because the queue was full"))
	if err != nil {
		return nil, err
	}

	m.TurnsCompleted, err = meter.Int64Counter("helmsman.turns.completed",
		metric.WithDescription("Number of conversation turns completed"))
	if err != nil {
		return nil, err
	}

	m.TurnCost, err = meter.Float64Histogram("helmsman.turn.cost_usd",
		metric.WithDescription("Turn cost in USD"))
	if err != nil {
		return nil, err
	}

	m.TurnDuration, err = meter.Float64Histogram("helmsman.turn.duration_seconds",
		metric.WithDescription("Turn duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
