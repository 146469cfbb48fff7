// Command taskwatchd runs the task-tracking coordinator: it restores
// persisted task state, resumes polling for in-flight jobs, and serves the
// consumer HTTP surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if err := run(); err != nil {
		slog.Error("taskwatchd failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	app, err := newApplication()
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer app.cleanup()

	return app.serve(context.Background())
}
