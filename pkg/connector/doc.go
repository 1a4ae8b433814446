/*
Package connector implements the per-API pool of client sockets providing
the asynchronous send_recv primitive the HTTP gateway uses to talk to a
queue's ingress endpoint. Connectors carry a sticky error flag: one that
ever errored or timed out is discarded, never handed out again. Every
dispatched request completes through exactly one of its two callbacks,
response or timeout.
*/
package connector
