package beat

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/jsphweid/metalign/model"
)

// pulse is one link of a persistent, append-only tatum history. Successor
// states extend the chain of their parent; nothing already linked changes.
type pulse struct {
	time  int64
	kind  model.PulseKind
	prev  *pulse
	count int
	hash  uint64
}

func (p *pulse) push(time int64, kind model.PulseKind) *pulse {
	var buf [17]byte
	count := 1
	if p != nil {
		binary.LittleEndian.PutUint64(buf[0:8], p.hash)
		count = p.count + 1
	}
	binary.LittleEndian.PutUint64(buf[8:16], uint64(time))
	buf[16] = byte(kind)
	return &pulse{
		time:  time,
		kind:  kind,
		prev:  p,
		count: count,
		hash:  xxhash.Sum64(buf[:]),
	}
}

func (p *pulse) len() int {
	if p == nil {
		return 0
	}
	return p.count
}

func (p *pulse) tatums() []model.Tatum {
	res := make([]model.Tatum, p.len())
	for q, i := p, p.len()-1; q != nil; q, i = q.prev, i-1 {
		res[i] = model.Tatum{Time: q.time, Kind: q.kind}
	}
	return res
}

// lastInterval is the gap between the two newest pulses, or 0.
func (p *pulse) lastInterval() int64 {
	if p == nil || p.prev == nil {
		return 0
	}
	return p.time - p.prev.time
}
