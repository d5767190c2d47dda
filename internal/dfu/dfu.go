// Package dfu implements C9: the bounded state machine that reflashes the
// auxiliary MCU through the "leapfrog" transitional firmware, mirroring the
// device's eSuperState (OFF, DFU, NORMAL) and its notification slots.
package dfu

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // required to match the on-wire AUX-DFU/start digest
	"errors"
	"fmt"
	"time"

	"github.com/fcp-project/fcpd/internal/devmap"
	"github.com/fcp-project/fcpd/internal/transport"
)

// blockSize is the DFU write chunk size (spec §4.8 step 8).
const blockSize = 1024

// Slots names the enum values and notify bits the engine resolves out of
// the device map before running (spec §4.8 step 1).
type Slots struct {
	StateOff    int
	StateDFU    int
	StateNormal int

	NotifyClear     int
	NotifyNextBlock int
	NotifyFinish    int
	NotifyError     int

	StateOffset     uint32
	BootModeOffset  uint32
	DFUNotifyOffset uint32
	ChangeBit       uint32
}

// ResolveSlots reads every enum/offset/bit the DFU engine needs from the
// device map, failing with a specific error on any missing member (spec
// §4.8 step 1).
func ResolveSlots(doc *devmap.Document) (Slots, error) {
	var s Slots
	var err error

	get := func(enum, symbol string, dst *int) {
		if err != nil {
			return
		}
		*dst, err = doc.EnumValue(enum, symbol)
	}
	get("eSuperState", "off", &s.StateOff)
	get("eSuperState", "dfu", &s.StateDFU)
	get("eSuperState", "normal", &s.StateNormal)
	get("eDFUNotify", "clear", &s.NotifyClear)
	get("eDFUNotify", "next_block", &s.NotifyNextBlock)
	get("eDFUNotify", "finish", &s.NotifyFinish)
	get("eDFUNotify", "error", &s.NotifyError)
	if err != nil {
		return Slots{}, fmt.Errorf("dfu: resolve enums: %w", err)
	}

	superState, err := doc.Resolve("super_state", false)
	if err != nil {
		return Slots{}, fmt.Errorf("dfu: resolve super_state: %w", err)
	}
	s.StateOffset = uint32(superState.Offset)

	bootMode, err := doc.Resolve("boot_mode", false)
	if err != nil {
		return Slots{}, fmt.Errorf("dfu: resolve boot_mode: %w", err)
	}
	s.BootModeOffset = uint32(bootMode.Offset)

	dfuNotify, err := doc.Resolve("dfu_notify", false)
	if err != nil {
		return Slots{}, fmt.Errorf("dfu: resolve dfu_notify: %w", err)
	}
	s.DFUNotifyOffset = uint32(dfuNotify.Offset)
	if dfuNotify.NotifyClient == nil {
		return Slots{}, errors.New("dfu: dfu_notify has no notify-client bit")
	}
	s.ChangeBit = uint32(*dfuNotify.NotifyClient)

	return s, nil
}

// Notifier is satisfied by Transport; split out for testing.
type Notifier interface {
	ReadNotification() (uint32, error)
}

// Engine drives the auxiliary-MCU DFU sequence over a transport.
type Engine struct {
	t       *transport.Transport
	notify  Notifier
	slots   Slots
	onDone  func(percent uint8)
	lastPct uint8
}

// New builds a DFU Engine. onProgress is invoked for every PROGRESS frame
// the sequence emits (spec §4.8); it may be nil.
func New(t *transport.Transport, slots Slots, onProgress func(percent uint8)) *Engine {
	if onProgress == nil {
		onProgress = func(uint8) {}
	}
	return &Engine{t: t, notify: t, slots: slots, onDone: onProgress}
}

func (e *Engine) progress(pct uint8) {
	if pct == e.lastPct {
		return
	}
	e.lastPct = pct
	e.onDone(pct)
}

// waitForChange blocks (bounded by ctx) until a notification with the
// DFU-change bit set arrives, per spec §4.8 "Waiting for notifications".
func (e *Engine) waitForChange(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("dfu: timed out waiting for DFU-change notification: %w", ctx.Err())
		default:
		}
		n, err := e.notify.ReadNotification()
		if err != nil {
			return fmt.Errorf("dfu: read notification: %w", err)
		}
		if n&e.slots.ChangeBit != 0 {
			return nil
		}
	}
}

func (e *Engine) waitForChangeTimeout(parent context.Context, d time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return e.waitForChange(ctx)
}

// pollState polls the device's eSuperState member up to 5 times at 100ms
// spacing until it equals want (spec §4.8 step 4).
func (e *Engine) pollState(ctx context.Context, want int) error {
	for attempt := 0; attempt < 5; attempt++ {
		state, err := e.t.DataReadWidened(e.slots.StateOffset, 1, false)
		if err != nil {
			return fmt.Errorf("dfu: read state: %w", err)
		}
		if int(state) == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("dfu: state did not reach %d within 5 polls", want)
}

// pollNotifySlot polls the dfu_notify data member up to 5 times, waiting
// for a notification each attempt, clearing the slot regardless, and
// succeeding only on an exact match (spec §4.8 "Polling DFU notification
// slots").
func (e *Engine) pollNotifySlot(ctx context.Context, want int) error {
	for attempt := 0; attempt < 5; attempt++ {
		if err := e.waitForChangeTimeout(ctx, 10*time.Second); err != nil {
			return err
		}
		raw, err := e.t.DataRead(e.slots.DFUNotifyOffset, 4)
		if err != nil {
			return fmt.Errorf("dfu: read notify slot: %w", err)
		}
		got := int(raw[0]) | int(raw[1])<<8 | int(raw[2])<<16 | int(raw[3])<<24

		clear := make([]byte, 4)
		clear[0] = byte(e.slots.NotifyClear)
		if err := e.t.DataWrite(e.slots.DFUNotifyOffset, clear); err != nil {
			return fmt.Errorf("dfu: clear notify slot: %w", err)
		}

		if got == want {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("dfu: notify slot never reported expected value %d", want)
}

func (e *Engine) writeBootMode(mode int) error {
	buf := make([]byte, 4)
	buf[0] = byte(mode)
	return e.t.DataWrite(e.slots.BootModeOffset, buf)
}

// driveTo transitions OFF<->target via boot-mode write + notify wait + poll,
// shared between the OFF and NORMAL transitions (spec §4.8 steps 4, 11).
func (e *Engine) driveTo(ctx context.Context, mode, wantState int) error {
	if err := e.writeBootMode(mode); err != nil {
		return fmt.Errorf("dfu: write boot mode: %w", err)
	}
	if err := e.waitForChangeTimeout(ctx, 10*time.Second); err != nil {
		return err
	}
	return e.pollState(ctx, wantState)
}

// Run executes the full happy-path DFU sequence (spec §4.8 steps 2-12).
func (e *Engine) Run(ctx context.Context, vid, pid, wantVID, wantPID uint16, payload []byte) error {
	if vid != wantVID || pid != wantPID {
		return errors.New("dfu: USB vid/pid mismatch")
	}
	// SHA-256 of payload is validated by the caller (the socket server's
	// ESP_FIRMWARE_UPDATE handler) before this point.
	e.progress(0)

	state, err := e.t.DataReadWidened(e.slots.StateOffset, 1, false)
	if err != nil {
		return fmt.Errorf("dfu: read initial state: %w", err)
	}
	if state == 0 {
		return errors.New("dfu: device is not running the leapfrog firmware")
	}

	if int(state) == e.slots.StateNormal {
		if err := e.driveTo(ctx, e.slots.StateOff, e.slots.StateOff); err != nil {
			return fmt.Errorf("dfu: transition to OFF: %w", err)
		}
	}

	md5sum := md5.Sum(payload) //nolint:gosec
	if err := e.t.AuxDFUStart(uint32(len(payload)), md5sum); err != nil {
		return fmt.Errorf("dfu: AUX-DFU/start: %w", err)
	}

	if err := e.waitForChangeTimeout(ctx, 10*time.Second); err != nil {
		return err
	}
	if err := e.pollState(ctx, e.slots.StateDFU); err != nil {
		return fmt.Errorf("dfu: device did not enter DFU state: %w", err)
	}

	if err := e.pollNotifySlot(ctx, e.slots.NotifyNextBlock); err != nil {
		return fmt.Errorf("dfu: awaiting first next_block: %w", err)
	}

	total := len(payload)
	sent := 0
	r := bytes.NewReader(payload)
	for sent < total {
		chunk := make([]byte, blockSize)
		n, _ := r.Read(chunk)
		if err := e.t.AuxDFUWrite(chunk[:n]); err != nil {
			return fmt.Errorf("dfu: write block at offset %d: %w", sent, err)
		}
		sent += n
		if err := e.pollNotifySlot(ctx, e.slots.NotifyNextBlock); err != nil {
			return fmt.Errorf("dfu: awaiting next_block after offset %d: %w", sent, err)
		}
		e.progress(uint8(sent * 100 / total))
	}

	if err := e.t.AuxDFUWrite(nil); err != nil {
		return fmt.Errorf("dfu: finalize write: %w", err)
	}
	if err := e.pollNotifySlot(ctx, e.slots.NotifyFinish); err != nil {
		return fmt.Errorf("dfu: awaiting finish: %w", err)
	}

	if err := e.driveTo(ctx, e.slots.StateOff, e.slots.StateOff); err != nil {
		return fmt.Errorf("dfu: transition to OFF (post-finish): %w", err)
	}
	if err := e.driveTo(ctx, e.slots.StateNormal, e.slots.StateNormal); err != nil {
		return fmt.Errorf("dfu: transition to NORMAL: %w", err)
	}

	e.progress(100)
	return nil
}
