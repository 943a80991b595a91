// Package server exposes drivebkup's Prometheus metrics over HTTP while a
// long-running command such as backup is in progress.
package server
