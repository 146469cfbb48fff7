// Package api exposes the tracker's consumer surface over HTTP for
// presentation code: listing active tasks, launching and cancelling jobs,
// and reading the per-entity status projection.
package api
