/*
Package registry maintains the in-memory view of worker containers keyed by
api_name, refreshed from the driver, and the desired-count map the
autoscaler mutates.

The registry is authoritative only within one reconciliation cycle; it is
not consulted for request routing.
*/
package registry
