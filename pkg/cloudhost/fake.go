package cloudhost

import "sync"

// Fake is a scriptable Host used by autoscaler tests.
type Fake struct {
	mu    sync.Mutex
	Stats map[string]float64

	IP             string
	CPU, Mem, Disk float64
	AllowTerminate bool
	Terminated     bool
}

// NewFake returns a Fake with termination allowed by default.
func NewFake() *Fake {
	return &Fake{Stats: make(map[string]float64), AllowTerminate: true}
}

func (f *Fake) PublishStat(name, _ string, value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Stats[name] = value
}

func (f *Fake) LocalIP() (string, error)      { return f.IP, nil }
func (f *Fake) CPUPercent() (float64, error)  { return f.CPU, nil }
func (f *Fake) MemPercent() (float64, error)  { return f.Mem, nil }
func (f *Fake) DiskPercent() (float64, error) { return f.Disk, nil }
func (f *Fake) CanTerminate() bool            { return f.AllowTerminate }

func (f *Fake) TerminateInstance() error {
	f.mu.Lock()
	f.Terminated = true
	f.mu.Unlock()
	return nil
}
