package socket

import (
	"fmt"

	"github.com/fcp-project/fcpd/internal/transport"
)

// segmentNames are the four flash regions the daemon must find on first
// use (spec §4.7 "Flash segment discovery").
var segmentNames = []string{"App_Upgrade", "App_Settings", "App_Disk", "App_Env"}

// SegmentMap caches the index/size of each named flash segment for process
// lifetime (spec §5 "The flash segment map is initialized once and treated
// as immutable thereafter").
type SegmentMap struct {
	byName map[string]transport.FlashSegment
	index  map[string]uint32
}

// DiscoverSegments calls flash.info then flash.segment-info for every
// segment, recording the four required segments by name. All four MUST
// exist and have non-zero indices.
func DiscoverSegments(t *transport.Transport) (*SegmentMap, error) {
	_, count, err := t.FlashInfo()
	if err != nil {
		return nil, fmt.Errorf("socket: flash.info: %w", err)
	}

	sm := &SegmentMap{byName: map[string]transport.FlashSegment{}, index: map[string]uint32{}}
	for i := uint32(0); i < count; i++ {
		seg, err := t.FlashSegmentInfo(i)
		if err != nil {
			return nil, fmt.Errorf("socket: flash.segment-info(%d): %w", i, err)
		}
		sm.byName[seg.Name] = seg
		sm.index[seg.Name] = i
	}

	for _, name := range segmentNames {
		idx, ok := sm.index[name]
		if !ok {
			return nil, fmt.Errorf("socket: required flash segment %q not found", name)
		}
		if idx == 0 {
			return nil, fmt.Errorf("socket: required flash segment %q has index 0", name)
		}
	}
	return sm, nil
}

func (sm *SegmentMap) Index(name string) uint32             { return sm.index[name] }
func (sm *SegmentMap) Segment(name string) transport.FlashSegment { return sm.byName[name] }

// eraseDoneSentinel is the flash.erase-progress block count meaning
// "complete" (spec §4.7, §8 "Boundaries").
const eraseDoneSentinel = 255
