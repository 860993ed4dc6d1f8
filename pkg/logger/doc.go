// Package logger builds the structured slog logger used across the monitor.
// Production environments log JSON to stdout, every other environment logs
// human-readable text.
package logger
