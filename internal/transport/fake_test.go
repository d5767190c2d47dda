package transport

import (
	"fmt"
	"sync"
)

// fakeKernelDevice is an in-memory KernelDevice used by this package's
// tests; it never touches real hardware.
type fakeKernelDevice struct {
	mu            sync.Mutex
	version       uint32
	commands      []recordedCommand
	respondWith   map[uint32][]byte
	notifications []uint32
	notifyErr     error
}

type recordedCommand struct {
	Opcode  uint32
	Request []byte
}

func newFakeKernelDevice() *fakeKernelDevice {
	return &fakeKernelDevice{
		version:     0x00020000, // major=2, minor=0
		respondWith: map[uint32][]byte{},
	}
}

func (f *fakeKernelDevice) VersionIoctl() (uint32, error) {
	return f.version, nil
}

func (f *fakeKernelDevice) InitIoctl(buf []byte) error {
	return nil
}

func (f *fakeKernelDevice) CommandIoctl(opcode uint32, reqSize, respSize uint32, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := append([]byte(nil), data[:reqSize]...)
	f.commands = append(f.commands, recordedCommand{Opcode: opcode, Request: req})
	if resp, ok := f.respondWith[opcode]; ok {
		if uint32(len(resp)) != respSize {
			return fmt.Errorf("fake: opcode %#x: scripted response length %d != requested %d", opcode, len(resp), respSize)
		}
		copy(data, resp)
	}
	return nil
}

func (f *fakeKernelDevice) ReadNotification() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifyErr != nil {
		return 0, f.notifyErr
	}
	if len(f.notifications) == 0 {
		return 0, fmt.Errorf("fake: no more scripted notifications")
	}
	n := f.notifications[0]
	f.notifications = f.notifications[1:]
	return n, nil
}

func (f *fakeKernelDevice) Fd() int { return -1 }

func (f *fakeKernelDevice) lastCommand() (recordedCommand, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) == 0 {
		return recordedCommand{}, false
	}
	return f.commands[len(f.commands)-1], true
}

func (f *fakeKernelDevice) commandCount(opcode uint32) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.commands {
		if c.Opcode == opcode {
			n++
		}
	}
	return n
}
