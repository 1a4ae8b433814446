/*
Package autoscaler implements the maintenance loop of the control plane: a
periodic reconciliation pass that refreshes the container registry, publishes
fleet stats to the cloud host, recomputes desired container counts from each
queue's moving average of in-flight requests, applies the resulting diff via
the registry and connector pool, and may self-terminate the instance once
the fleet is fully idle.
*/
package autoscaler
