package blockpool

import "github.com/launchdarkly/go-jsonstream/v3/jwriter"

// Statistics is a point-in-time snapshot of a pool's block accounting, usable for
// capacity planning and runtime health monitoring.
type Statistics struct {
	Capacity  int
	BlockSize int
	Used      int
	Free      int
	PeakUsed  int
}

func (s *Statistics) Clear() {
	s.Capacity = 0
	s.BlockSize = 0
	s.Used = 0
	s.Free = 0
	s.PeakUsed = 0
}

// AddStatistics sums another snapshot into this one. Aggregating across pools is
// meaningful in the dual-context topology, where each context owns its own pool.
func (s *Statistics) AddStatistics(other *Statistics) {
	s.Capacity += other.Capacity
	s.Used += other.Used
	s.Free += other.Free
	s.PeakUsed += other.PeakUsed

	if other.BlockSize > s.BlockSize {
		s.BlockSize = other.BlockSize
	}
}

// AddStatistics sums this pool's current accounting into the statistics currently
// present in the provided Statistics object.
func (p *Pool) AddStatistics(stats *Statistics) {
	stats.Capacity += p.capacity
	stats.Used += p.used
	stats.Free += p.FreeCount()
	stats.PeakUsed += p.peakUsed

	if p.blockSize > stats.BlockSize {
		stats.BlockSize = p.blockSize
	}
}

// PoolJsonData populates a json object with this pool's accounting counters.
func (p *Pool) PoolJsonData(json jwriter.ObjectState) {
	json.Name("BlockSize").Int(p.blockSize)
	json.Name("Capacity").Int(p.capacity)
	json.Name("Used").Int(p.used)
	json.Name("Free").Int(p.FreeCount())
	json.Name("PeakUsed").Int(p.peakUsed)
}
