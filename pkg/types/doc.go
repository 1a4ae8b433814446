/*
Package types defines the data structures shared across jbapi's control plane:
API specifications, container records, the worker wire protocol, and the signed
envelope used by the inter-instance job bus.

These types carry no behavior beyond small helpers (naming, parsing); the
packages that own a concern (specstore, queue, registry, jobbus) interpret them.
*/
package types
