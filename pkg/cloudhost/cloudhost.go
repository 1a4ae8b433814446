package cloudhost

// Host is the hosting-platform abstraction the autoscaler consumes: stat
// publishing, local IP discovery, and self-termination.
type Host interface {
	// PublishStat reports a named metric reading; unit is informational.
	PublishStat(name, unit string, value float64)
	// LocalIP returns the address workers and peers should use to reach
	// this instance.
	LocalIP() (string, error)
	// CPUPercent returns the current CPU utilization percentage (0-100).
	CPUPercent() (float64, error)
	// MemPercent returns the current memory utilization percentage (0-100).
	MemPercent() (float64, error)
	// DiskPercent returns the current disk utilization percentage (0-100)
	// for the configured data path.
	DiskPercent() (float64, error)
	// CanTerminate reports whether the platform currently permits this
	// instance to terminate itself.
	CanTerminate() bool
	// TerminateInstance requests that the platform terminate this instance.
	TerminateInstance() error
}
