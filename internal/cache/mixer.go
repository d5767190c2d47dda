// Package cache implements C5: dirty-flagged write-through caches over the
// mixer coefficient matrix and the three sample-rate-group router tables.
package cache

import (
	"fmt"

	"github.com/fcp-project/fcpd/internal/transport"
)

// Mixer caches output_count rows of input_count coefficients each. A row is
// considered stale ("dirty" in spec terms) until it has been read at least
// once since creation or the last explicit invalidation; reading a stale
// row fetches the whole row from the device, and writing mutates the
// in-memory row and flushes it back immediately. There is no cross-row
// coupling.
type Mixer struct {
	tr         *transport.Transport
	outputCount int
	inputCount  int
	rows        [][]uint16
	loaded      []bool
}

// NewMixer builds a mixer cache sized per mix.info (spec §4.3 "Mixer
// controls"). Rows start unloaded; they are fetched lazily.
func NewMixer(tr *transport.Transport, outputCount, inputCount int) *Mixer {
	return &Mixer{
		tr:          tr,
		outputCount: outputCount,
		inputCount:  inputCount,
		rows:        make([][]uint16, outputCount),
		loaded:      make([]bool, outputCount),
	}
}

func (m *Mixer) checkRow(row int) error {
	if row < 0 || row >= m.outputCount {
		return fmt.Errorf("cache: mixer row %d out of range [0,%d)", row, m.outputCount)
	}
	return nil
}

func (m *Mixer) ensureLoaded(row int) error {
	if m.loaded[row] {
		return nil
	}
	coeffs, err := m.tr.MixRead(uint16(row), uint16(m.inputCount))
	if err != nil {
		return fmt.Errorf("cache: mixer row %d fetch: %w", row, err)
	}
	m.rows[row] = coeffs
	m.loaded[row] = true
	return nil
}

// Read returns the cached coefficient for (row, input), fetching the whole
// row first if it is stale.
func (m *Mixer) Read(row, input int) (uint16, error) {
	if err := m.checkRow(row); err != nil {
		return 0, err
	}
	if input < 0 || input >= m.inputCount {
		return 0, fmt.Errorf("cache: mixer input %d out of range [0,%d)", input, m.inputCount)
	}
	if err := m.ensureLoaded(row); err != nil {
		return 0, err
	}
	return m.rows[row][input], nil
}

// Write mutates one coefficient in-memory and flushes the whole row back to
// the device.
func (m *Mixer) Write(row, input int, value uint16) error {
	if err := m.checkRow(row); err != nil {
		return err
	}
	if input < 0 || input >= m.inputCount {
		return fmt.Errorf("cache: mixer input %d out of range [0,%d)", input, m.inputCount)
	}
	if err := m.ensureLoaded(row); err != nil {
		return err
	}
	m.rows[row][input] = value
	if err := m.tr.MixWrite(uint16(row), m.rows[row]); err != nil {
		return fmt.Errorf("cache: mixer row %d flush: %w", row, err)
	}
	return nil
}

// Invalidate marks a row stale, forcing the next Read/Write to refetch it.
func (m *Mixer) Invalidate(row int) {
	if row >= 0 && row < m.outputCount {
		m.loaded[row] = false
	}
}

// OutputCount and InputCount report the cache's fixed dimensions.
func (m *Mixer) OutputCount() int { return m.outputCount }
func (m *Mixer) InputCount() int  { return m.inputCount }
