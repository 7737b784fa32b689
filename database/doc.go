// Package database manages named binds on top of Bun: configuration loading,
// engine lifecycle, sessions with transaction scopes, model registries,
// versioned migrations, health checks and driver error classification.
package database
