// Package telemetry exposes Prometheus metrics for the tracking subsystem.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	LaunchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskwatch_launches_total",
		Help: "Jobs successfully launched",
	})
	LaunchRejects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskwatch_launch_rejects_total",
		Help: "Launches rejected because a task was already active for the key",
	})
	PollsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskwatch_polls_total",
		Help: "Status queries issued",
	})
	PollErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskwatch_poll_errors_total",
		Help: "Status queries that failed at the transport level",
	})
	TasksTerminal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskwatch_tasks_terminal_total",
		Help: "Terminal transitions by status",
	}, []string{"status"})
	ActiveTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "taskwatch_active_tasks",
		Help: "Tasks currently being polled",
	})
	SnapshotSaveFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskwatch_snapshot_save_failures_total",
		Help: "Snapshot writes that failed and were swallowed",
	})
	SnapshotLoadFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskwatch_snapshot_load_failures_total",
		Help: "Snapshot reads discarded as unreadable or corrupt",
	})
)

// Handler exposes the /metrics HTTP handler with a singleton registration.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			LaunchesTotal,
			LaunchRejects,
			PollsTotal,
			PollErrors,
			TasksTerminal,
			ActiveTasks,
			SnapshotSaveFailures,
			SnapshotLoadFailures,
		)
	})
	return promhttp.Handler()
}
