package cache

import (
	"fmt"

	"github.com/fcp-project/fcpd/internal/transport"
)

// RateGroupCount is the fixed number of sample-rate-group router tables
// (44.1/48, 88.2/96, 176.4/192 kHz).
const RateGroupCount = 3

// Router caches the three parallel rate-group tables of router slots. The
// whole cache shares a single dirty flag: on first touch after
// invalidation, all three tables are re-read; a write updates the same
// router pin in every rate the destination is present at and re-flushes
// each such table.
type Router struct {
	tr     *transport.Transport
	sizes  [RateGroupCount]int
	tables [RateGroupCount][]uint32
	loaded bool
}

// NewRouter builds a router cache sized per mux.info.
func NewRouter(tr *transport.Transport, sizes [RateGroupCount]int) *Router {
	return &Router{tr: tr, sizes: sizes}
}

func (r *Router) ensureLoaded() error {
	if r.loaded {
		return nil
	}
	for rate := 0; rate < RateGroupCount; rate++ {
		if r.sizes[rate] == 0 {
			r.tables[rate] = nil
			continue
		}
		slots, err := r.tr.MuxRead(uint8(rate), uint8(r.sizes[rate]))
		if err != nil {
			return fmt.Errorf("cache: router table %d fetch: %w", rate, err)
		}
		r.tables[rate] = slots
	}
	r.loaded = true
	return nil
}

func (r *Router) checkRate(rate int) error {
	if rate < 0 || rate >= RateGroupCount {
		return fmt.Errorf("cache: router rate group %d out of range", rate)
	}
	return nil
}

// Read returns the raw slot value (low 12 bits destination pin, high 12
// bits source pin) at (rate, slot).
func (r *Router) Read(rate, slot int) (uint32, error) {
	if err := r.checkRate(rate); err != nil {
		return 0, err
	}
	if err := r.ensureLoaded(); err != nil {
		return 0, err
	}
	if slot < 0 || slot >= len(r.tables[rate]) {
		return 0, fmt.Errorf("cache: router slot %d out of range for rate %d", slot, rate)
	}
	return r.tables[rate][slot], nil
}

// WriteSlot mutates one slot in-memory and flushes its whole rate table.
func (r *Router) WriteSlot(rate, slot int, value uint32) error {
	if err := r.checkRate(rate); err != nil {
		return err
	}
	if err := r.ensureLoaded(); err != nil {
		return err
	}
	if slot < 0 || slot >= len(r.tables[rate]) {
		return fmt.Errorf("cache: router slot %d out of range for rate %d", slot, rate)
	}
	r.tables[rate][slot] = value
	if err := r.tr.MuxWrite(uint16(rate), r.tables[rate]); err != nil {
		return fmt.Errorf("cache: router table %d flush: %w", rate, err)
	}
	return nil
}

// EncodeSlot packs a destination pin and a source pin into a router slot
// value: low 12 bits destination, high 12 bits source (spec §3 glossary
// "Router pin").
func EncodeSlot(destPin, sourcePin int) uint32 {
	return uint32(destPin&0xFFF) | uint32(sourcePin&0xFFF)<<12
}

// DecodeSlot is the inverse of EncodeSlot.
func DecodeSlot(slot uint32) (destPin, sourcePin int) {
	return int(slot & 0xFFF), int((slot >> 12) & 0xFFF)
}

// WriteAcrossRates writes sourcePin into destPin's slot at every rate where
// slotIndices[rate] >= 0, leaving absent rates untouched (spec §4.3 router
// controls, §8 scenario 2).
func (r *Router) WriteAcrossRates(slotIndices [RateGroupCount]int, destPin, sourcePin int) error {
	value := EncodeSlot(destPin, sourcePin)
	for rate, slot := range slotIndices {
		if slot < 0 {
			continue
		}
		if err := r.WriteSlot(rate, slot, value); err != nil {
			return err
		}
	}
	return nil
}

// FindSlotForPin searches rate table 0 (and returns -1 for other rates
// unless present) for the slot whose destination pin matches destPin. It
// returns the slot index per rate, -1 meaning "not present at that rate",
// per spec §4.3: "search table 0 for the slot holding that destination
// pin; tables 1 and 2 are optional."
func (r *Router) FindSlotForPin(destPin int) ([RateGroupCount]int, error) {
	var result [RateGroupCount]int
	for i := range result {
		result[i] = -1
	}
	if err := r.ensureLoaded(); err != nil {
		return result, err
	}
	for rate := 0; rate < RateGroupCount; rate++ {
		for slot, v := range r.tables[rate] {
			d, _ := DecodeSlot(v)
			if d == destPin {
				result[rate] = slot
				break
			}
		}
	}
	return result, nil
}

// Invalidate forces the next access to re-fetch every rate table.
func (r *Router) Invalidate() { r.loaded = false }

// Sizes reports the configured per-rate table sizes.
func (r *Router) Sizes() [RateGroupCount]int { return r.sizes }
