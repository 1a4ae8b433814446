/*
Package jobbus implements the inter-instance job bus: a broadcast (push/pull)
channel for fire-and-forget maintenance tasks and a query (request/reply)
channel for synchronous peer queries, both carrying HMAC-signed JSON
envelopes. Handlers are registered by opcode at startup; a message whose
signature fails verification is logged and dropped before any handler runs.
*/
package jobbus
