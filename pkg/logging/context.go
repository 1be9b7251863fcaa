package logging

import (
	"context"

	"github.com/go-logr/logr"
)

type contextKey string

const loggerKey contextKey = "logger"

// FromContext returns the logger from the context, or the global logger
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return GetGlobalLogger()
	}
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return GetGlobalLogger()
}

// IntoContext returns a new context with the logger
func IntoContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LogrFromContext returns the logr view of the context logger
func LogrFromContext(ctx context.Context) logr.Logger {
	return FromContext(ctx).Logger()
}

// LoggerForNetwork returns the context logger tagged with a network id
func LoggerForNetwork(ctx context.Context, networkID string) *Logger {
	return FromContext(ctx).WithValues("network", networkID)
}

// LoggerForPort returns the context logger tagged with a port id
func LoggerForPort(ctx context.Context, portID string) *Logger {
	return FromContext(ctx).WithValues("port", portID)
}

// LoggerForSecurityGroup returns the context logger tagged with a security group id
func LoggerForSecurityGroup(ctx context.Context, groupID string) *Logger {
	return FromContext(ctx).WithValues("securityGroup", groupID)
}

// LoggerForRouter returns the context logger tagged with a router id
func LoggerForRouter(ctx context.Context, routerID string) *Logger {
	return FromContext(ctx).WithValues("router", routerID)
}

// LoggerForOVN returns a logger for OVN topology operations
func LoggerForOVN(ctx context.Context, operation string) *Logger {
	return FromContext(ctx).WithName("ovn").WithValues("operation", operation)
}
