// Package server implements the HTTP monitoring API for the bridge.
// It exposes session statistics, the active configuration, health checks
// and Prometheus metrics.
package server
