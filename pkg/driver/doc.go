/*
Package driver abstracts the container-orchestration side effect surface the
rest of jbapi treats as an opaque collaborator: create / start / stop / kill /
remove / inspect / list / list images.

Driver is the narrow interface the registry and autoscaler depend on;
Containerd is the production implementation, and Fake is an in-memory double
for tests.
*/
package driver
