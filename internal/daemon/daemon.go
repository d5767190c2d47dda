// Package daemon assembles C1-C9 into one running instance (spec §9
// "Global mutable state... represent these as fields on a Daemon value
// constructed at startup and threaded through handlers"). It owns the
// single cooperative event loop described in spec §5: within one
// iteration, a ready audio-control-surface event is always handled before
// a ready device notification, which is always handled before a ready
// socket connection; each handler runs to completion before the loop looks
// for the next event. The reference drives that ordering with a single
// raw select(2) over heterogeneous file descriptors; here the same
// single-consumer ordering is expressed with channels, which is the
// idiomatic Go shape for "many producers, one serialized consumer" and
// keeps every shared field (caches, control set, segment map) touched from
// exactly one goroutine.
package daemon

import (
	"context"
	"net"

	"github.com/charmbracelet/log"

	"github.com/fcp-project/fcpd/internal/control"
	"github.com/fcp-project/fcpd/internal/devmap"
	"github.com/fcp-project/fcpd/internal/dfu"
	"github.com/fcp-project/fcpd/internal/reconcile"
	"github.com/fcp-project/fcpd/internal/socket"
	"github.com/fcp-project/fcpd/internal/synth"
	"github.com/fcp-project/fcpd/internal/transport"
)

// Surface is the subset of the abstract audio-control surface the daemon
// drives directly, beyond the Reconciler's own Surface dependency: it also
// needs to publish/lock the discovery TLV (spec §4.9, §6).
type Surface interface {
	reconcile.Surface
	// PublishSocketTLV attaches blob to the "Firmware Version" element's
	// TLV and holds that element locked for as long as the daemon runs.
	PublishSocketTLV(blob []byte) error
}

// Daemon is one running instance, one per hardware card (spec §1).
type Daemon struct {
	Transport *transport.Transport
	Doc       *devmap.Document
	Set       *control.Set
	Surface   Surface
	Reconciler *reconcile.Reconciler
	Socket    *socket.Server

	surfaceWrites chan surfaceWrite
	socketConns   chan net.Conn
}

type surfaceWrite struct {
	iface control.Interface
	name  string
	value int64
}

// New wires a fully-synthesized daemon instance. tr and doc must already
// have completed startup (spec §3 lifecycle: "device description is loaded
// once at startup... controls are synthesized once"). sock may be nil in
// tests that only exercise reconciliation.
func New(tr *transport.Transport, doc *devmap.Document, res *synth.Result, surface Surface, sock *socket.Server, vid, pid uint16) *Daemon {
	d := &Daemon{
		Transport:     tr,
		Doc:           doc,
		Set:           res.Set,
		Surface:       surface,
		Socket:        sock,
		surfaceWrites: make(chan surfaceWrite, 16),
		socketConns:   make(chan net.Conn, 1),
	}
	d.Reconciler = reconcile.New(res.Set, surface, tr)
	if sock != nil {
		// SetDFU always carries vid/pid: internal/socket.runAppFirmwareUpdate
		// validates ordinary APP_FIRMWARE_UPDATE requests against them
		// regardless of whether this card has an auxiliary MCU to flash.
		// When ResolveSlots fails (no aux-MCU fields in the device map), the
		// zero-value Slots are wired instead; ESP_FIRMWARE_UPDATE then fails
		// per-operation (spec §7 "Recoverable per-operation") rather than
		// silently leaving dfuVID/dfuPID unset and rejecting every app
		// firmware upload.
		slots, _ := dfu.ResolveSlots(doc)
		sock.SetDFU(vid, pid, slots)
	}
	return d
}

// PushSurfaceWrite is the entry point a real audio-control-surface binding
// calls when its event channel delivers a write; it enqueues onto the
// daemon's single event loop rather than handling inline, so surface
// writes never race with notification reconciliation.
func (d *Daemon) PushSurfaceWrite(iface control.Interface, name string, value int64) {
	d.surfaceWrites <- surfaceWrite{iface, name, value}
}

// acceptLoop feeds one accepted connection at a time into socketConns, so
// clients are served strictly one after another. Additional connection
// attempts are not closed: one can wait in socketConns, one more is held
// here while the send blocks, and further ones stay in the listen queue.
func (d *Daemon) acceptLoop(ctx context.Context) {
	for {
		conn, err := d.Socket.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Warn("daemon: accept", "err", err)
				continue
			}
		}
		select {
		case d.socketConns <- conn:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
	}
}

// notifyLoop feeds device notification words into a channel, one at a
// time, preserving arrival order (spec §5 suspension points: "the transport
// ioctl... socket reads/writes").
func (d *Daemon) notifyLoop(ctx context.Context, out chan<- uint32) {
	for {
		n, err := d.Transport.ReadNotification()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Error("daemon: read notification", "err", err)
				return
			}
		}
		select {
		case out <- n:
		case <-ctx.Done():
			return
		}
	}
}

// Run drives the single cooperative event loop until ctx is canceled (spec
// §5 "single-threaded cooperative with a single select-based event loop").
// Within one iteration it prefers, in order, a pending surface write, then
// a pending device notification, then a pending socket connection —
// matching spec §5's handler order — before blocking for the next event.
func (d *Daemon) Run(ctx context.Context) error {
	notifications := make(chan uint32, 16)
	go d.notifyLoop(ctx, notifications)
	if d.Socket != nil {
		go d.acceptLoop(ctx)
	}

	for {
		select {
		case sw := <-d.surfaceWrites:
			d.handleSurfaceWrite(sw)
			continue
		default:
		}
		select {
		case n := <-notifications:
			d.handleNotification(n)
			continue
		default:
		}
		select {
		case conn := <-d.socketConns:
			d.Socket.Serve(ctx, conn)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case sw := <-d.surfaceWrites:
			d.handleSurfaceWrite(sw)
		case n := <-notifications:
			d.handleNotification(n)
		case conn := <-d.socketConns:
			d.Socket.Serve(ctx, conn)
		}
	}
}

func (d *Daemon) handleSurfaceWrite(sw surfaceWrite) {
	if err := d.Reconciler.OnSurfaceWrite(sw.iface, sw.name, sw.value); err != nil {
		log.Warn("daemon: surface write", "control", sw.name, "err", err)
	}
}

func (d *Daemon) handleNotification(n uint32) {
	if err := d.Reconciler.OnDeviceNotification(n); err != nil {
		log.Warn("daemon: notification reconcile", "mask", n, "err", err)
		return
	}
	log.Debug("daemon: reconciled notification", "mask", n)
}
