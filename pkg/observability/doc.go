/*
Package observability exports Prometheus metrics for flow runs.

Metrics implements the flow runner's Listener interface, counting run
lifecycle events and per-node visits so a service embedding the runner can
expose them on its /metrics endpoint.
*/
package observability
