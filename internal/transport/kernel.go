// Package transport implements the fixed-header command framing exchanged
// with the kernel audio-control device (the device itself is out of scope;
// this package only issues the opcodes and shapes the request/response
// buffers it expects).
package transport

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// KernelDevice is the thin syscall surface a real kernel transport exposes:
// a version ioctl, an init ioctl, a generic command ioctl, and a byte stream
// of u32 notifications. Modeling it as an interface (rather than calling
// unix.IoctlSetInt directly from Transport) keeps the ioctl numbers in one
// place and lets tests substitute an in-memory fake.
type KernelDevice interface {
	// VersionIoctl returns the packed major.minor.sub nibbles reported by
	// the driver.
	VersionIoctl() (uint32, error)
	// InitIoctl issues the init ioctl with an opaque request/response area.
	InitIoctl(buf []byte) error
	// CommandIoctl issues the generic command ioctl: opcode plus a shared
	// data area at least max(reqSize, respSize) bytes long. On return the
	// leading respSize bytes of data hold the response, overwritten in
	// place exactly as the real driver does.
	CommandIoctl(opcode uint32, reqSize, respSize uint32, data []byte) error
	// ReadNotification blocks for the next u32 notification word.
	ReadNotification() (uint32, error)
	// Fd returns the underlying descriptor. The DFU engine and the daemon
	// event loop do not use it; they wait through ReadNotification.
	Fd() int
}

// Linux ioctl request codes for the three calls in spec §6. The real
// numbers are driver-defined; these placeholders follow the usbfs
// convention of _IOR/_IOWR-style encoding used by Daedaluz-gousb's usbfs
// package, so a genuine driver header only needs its own magic swapped in.
const (
	iocGetVersion uintptr = 0x80047601
	iocInit       uintptr = 0xc0087602
	iocCommand    uintptr = 0xc0107603
)

// linuxKernelDevice is the default KernelDevice, talking to an already-open
// character device file descriptor via raw ioctl syscalls, the same idiom
// Daedaluz-gousb's usbfs package and the teacher's src/cm108.go use instead
// of cgo struct casts.
type linuxKernelDevice struct {
	fd int
}

// NewLinuxKernelDevice wraps an already-opened device descriptor (typically
// obtained by opening /dev/snd/by-path/... or a vendor-specific control
// node; locating that node is out of this package's scope).
func NewLinuxKernelDevice(fd int) KernelDevice {
	return &linuxKernelDevice{fd: fd}
}

func (d *linuxKernelDevice) Fd() int { return d.fd }

func (d *linuxKernelDevice) VersionIoctl() (uint32, error) {
	var version uint32
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), iocGetVersion, uintptr(unsafe.Pointer(&version)))
	if errno != 0 {
		return 0, fmt.Errorf("transport: version ioctl: %w", errno)
	}
	return version, nil
}

func (d *linuxKernelDevice) InitIoctl(buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("transport: init ioctl requires a non-empty buffer")
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), iocInit, uintptr(ptr(&buf[0])))
	if errno != 0 {
		return fmt.Errorf("transport: init ioctl: %w", errno)
	}
	return nil
}

// commandHeader is the fixed 12-byte header prefixing the shared data area
// on every command ioctl.
type commandHeader struct {
	Opcode   uint32
	ReqSize  uint32
	RespSize uint32
}

func (d *linuxKernelDevice) CommandIoctl(opcode uint32, reqSize, respSize uint32, data []byte) error {
	shared := maxU32(reqSize, respSize)
	if uint32(len(data)) < shared {
		return fmt.Errorf("transport: command data area too small: have %d, need %d", len(data), shared)
	}
	hdr := commandHeader{Opcode: opcode, ReqSize: reqSize, RespSize: respSize}
	packet := make([]byte, 12+len(data))
	putHeader(packet, hdr)
	copy(packet[12:], data)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), iocCommand, uintptr(ptr(&packet[0])))
	if errno != 0 {
		return fmt.Errorf("transport: command ioctl (opcode %#x): %w", opcode, errno)
	}
	copy(data, packet[12:])
	return nil
}

func (d *linuxKernelDevice) ReadNotification() (uint32, error) {
	var buf [4]byte
	n, err := unix.Read(d.fd, buf[:])
	if err != nil {
		return 0, fmt.Errorf("transport: read notification: %w", err)
	}
	if n != 4 {
		return 0, fmt.Errorf("transport: short notification read: %d bytes", n)
	}
	return leUint32(buf[:]), nil
}

func maxU32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
