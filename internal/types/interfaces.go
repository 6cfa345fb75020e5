// Package types defines the core types and interfaces for the load-balancing core
package types

// Strategy selects one server from the eligible set. Implementations must be
// pure over the provided set: the same inputs and internal cursor state yield
// the same choice regardless of concurrent registry mutation.
type Strategy interface {
	// Name returns the strategy's registered name
	Name() string
	// Select picks a server from the eligible set. The set is never empty.
	Select(eligible []ServerInstance, affinityKey string) (ServerInstance, error)
}

// Logger provides structured logging
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	With(fields ...any) Logger
}
