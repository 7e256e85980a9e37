package resources

import "fmt"

// Amounts is a quantity in each schedulable resource dimension. It serves
// both as a request cost and as a budget; the zero value is "nothing".
type Amounts struct {
	CPU       uint64
	MemoryMB  uint64
	DiskIO    uint64
	NetworkIO uint64
}

// Add returns the component-wise sum of a and b.
func (a Amounts) Add(b Amounts) Amounts {
	return Amounts{
		CPU:       a.CPU + b.CPU,
		MemoryMB:  a.MemoryMB + b.MemoryMB,
		DiskIO:    a.DiskIO + b.DiskIO,
		NetworkIO: a.NetworkIO + b.NetworkIO,
	}
}

// Subtract returns the component-wise difference a - b.
func (a Amounts) Subtract(b Amounts) Amounts {
	return Amounts{
		CPU:       a.CPU - b.CPU,
		MemoryMB:  a.MemoryMB - b.MemoryMB,
		DiskIO:    a.DiskIO - b.DiskIO,
		NetworkIO: a.NetworkIO - b.NetworkIO,
	}
}

// FitsWithin reports whether every component of a is <= the corresponding
// component of b.
func (a Amounts) FitsWithin(b Amounts) bool {
	return a.CPU <= b.CPU &&
		a.MemoryMB <= b.MemoryMB &&
		a.DiskIO <= b.DiskIO &&
		a.NetworkIO <= b.NetworkIO
}

// AnyBelow reports whether a is strictly less than b in at least one
// dimension.
func (a Amounts) AnyBelow(b Amounts) bool {
	return a.CPU < b.CPU ||
		a.MemoryMB < b.MemoryMB ||
		a.DiskIO < b.DiskIO ||
		a.NetworkIO < b.NetworkIO
}

// Capped returns a with every component clamped to the corresponding
// component of limit.
func (a Amounts) Capped(limit Amounts) Amounts {
	return Amounts{
		CPU:       min(a.CPU, limit.CPU),
		MemoryMB:  min(a.MemoryMB, limit.MemoryMB),
		DiskIO:    min(a.DiskIO, limit.DiskIO),
		NetworkIO: min(a.NetworkIO, limit.NetworkIO),
	}
}

// String renders the amounts for logs and error messages.
func (a Amounts) String() string {
	return fmt.Sprintf("cpu=%d mem_mb=%d disk_io=%d net_io=%d", a.CPU, a.MemoryMB, a.DiskIO, a.NetworkIO)
}
