package detect

import (
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/franz/media-janitor/internal/util"
)

// MemoryProbe reports how many bytes of memory are still available
type MemoryProbe interface {
	Available() (uint64, error)
}

// SystemMemory reads available memory from the operating system
type SystemMemory struct{}

// Available implements MemoryProbe
func (SystemMemory) Available() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// headroomGuard trips when available memory falls below a threshold
type headroomGuard struct {
	probe    MemoryProbe
	headroom uint64
}

// breached reports whether a scan should stop expanding. A zero threshold or
// a probe failure never trips the guard.
func (g headroomGuard) breached() (bool, uint64) {
	if g.headroom == 0 || g.probe == nil {
		return false, 0
	}
	avail, err := g.probe.Available()
	if err != nil {
		util.DebugLog("Memory probe failed: %v", err)
		return false, 0
	}
	return avail < g.headroom, avail
}
