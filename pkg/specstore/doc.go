/*
Package specstore persists per-API configuration: a durable key/value store
mapping api_name to APISpec, fronted by a read-through cache keyed by
api_name.

BoltStore keeps one bbolt bucket of JSON-encoded records, created on open.
The store has exactly one concern, so it exposes a narrow Store interface
rather than a bbolt-shaped one, letting the autoscaler and registry depend
on it without importing bbolt.
*/
package specstore
