/*
Package cloudhost abstracts the hosting platform: stat publishing, local IP
discovery, and self-termination permission/action. Local is the production
implementation, reading CPU/memory/disk utilization with shirou/gopsutil/v3;
PublishStat forwards into the Prometheus collectors in pkg/metrics rather
than to an external stats API, since jbapi has no separate metrics backend
of its own.
*/
package cloudhost
