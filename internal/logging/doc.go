// Package logging builds the slog loggers used across deskrec and
// provides the shared attribute helpers and field names that keep
// structured output consistent between components.
package logging
