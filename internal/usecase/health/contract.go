package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EncoderChecker checks embedding provider availability.
type EncoderChecker interface {
	HealthCheck(ctx context.Context) error
}

// QueueChecker checks task queue connectivity.
type QueueChecker interface {
	IsConnected() bool
}
