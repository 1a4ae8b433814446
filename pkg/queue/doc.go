/*
Package queue implements the per-API broker: a listener pair (ingress,
egress) that forwards request/response frames between the dispatcher and
worker containers, plus the outstanding-request count and its
exponentially-weighted moving average that drive the autoscaler.

The ingress side accepts frames from many clients and preserves the reply
envelope; the egress side distributes frames across however many workers
are connected. Forwarding never interprets message payloads.
*/
package queue
