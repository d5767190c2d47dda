package socket

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fcp-project/fcpd/internal/dfu"
	"github.com/fcp-project/fcpd/internal/transport"
)

// minAppFirmwareLen and the upgrade-segment ceiling bound an
// APP_FIRMWARE_UPDATE payload (spec §4.7, §8 "Boundaries").
const minAppFirmwareLen = 64 * 1024

// erasePollInterval mirrors spec §4.7's 50ms poll cadence.
const erasePollInterval = 50 * time.Millisecond

// Server owns one filesystem socket for one card, accepting at most one
// client connection at a time (spec §4.7).
type Server struct {
	path   string
	ln     net.Listener
	t      *transport.Transport
	dfuVID uint16
	dfuPID uint16
	dfuDoc dfu.Slots
	segs   *SegmentMap
}

// New opens the listening socket at path. Any previously-present socket
// file is removed first, matching a daemon restart after an unclean exit.
func New(path string, t *transport.Transport) (*Server, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("socket: listen %s: %w", path, err)
	}
	return &Server{path: path, ln: ln, t: t}, nil
}

// Close releases the listening socket and removes the socket file.
func (s *Server) Close() error {
	return s.ln.Close()
}

// SetDFU attaches the auxiliary-MCU DFU resolution needed to service
// ESP_FIRMWARE_UPDATE requests.
func (s *Server) SetDFU(vid, pid uint16, slots dfu.Slots) {
	s.dfuVID, s.dfuPID, s.dfuDoc = vid, pid, slots
}

// EnsureSegments discovers and caches the flash segment map on first use
// (spec §4.7 "Flash segment discovery... Cache this for process lifetime").
func (s *Server) EnsureSegments() error {
	if s.segs != nil {
		return nil
	}
	segs, err := DiscoverSegments(s.t)
	if err != nil {
		return err
	}
	s.segs = segs
	return nil
}

// Accept blocks for the next client connection. The daemon's dedicated
// accept loop (internal/daemon.acceptLoop) is the sole caller and
// serializes connections onto a single-slot channel. A connection attempt
// arriving while another is being served is not closed: it is accepted and
// queued behind the current one, or waits in the kernel listen queue.
func (s *Server) Accept() (net.Conn, error) {
	return s.ln.Accept()
}

// Serve handles one client connection end to end: read the request header,
// dispatch, stream PROGRESS frames, and terminate with ERROR or SUCCESS
// (spec §4.7 "client state machine").
func (s *Server) Serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)

	req, err := ReadFrame(r)
	if err != nil {
		log.Warn("socket: read request", "err", err)
		return
	}
	if req.Magic != MagicRequest {
		writeFrame(conn, errorFrame(ErrInvalidMagic))
		return
	}

	var code ErrorCode
	ok := true
	switch RequestType(req.Type) {
	case ReqReboot:
		err := s.t.Reboot()
		if err != nil {
			code, ok = ErrFCP, false
		}
	case ReqConfigErase, ReqAppFirmwareErase, ReqAppFirmwareUpdate:
		if err := s.EnsureSegments(); err != nil {
			writeFrame(conn, errorFrame(ErrConfig))
			return
		}
		switch RequestType(req.Type) {
		case ReqConfigErase:
			ok, code = s.runErase(conn, "App_Settings")
		case ReqAppFirmwareErase:
			ok, code = s.runErase(conn, "App_Upgrade")
		default:
			ok, code = s.runAppFirmwareUpdate(conn, req.Payload)
		}
	case ReqESPFirmwareUpdate:
		ok, code = s.runESPFirmwareUpdate(ctx, conn, req.Payload)
	default:
		ok, code = false, ErrInvalidCommand
	}

	if !ok {
		writeFrame(conn, errorFrame(code))
		return
	}
	writeFrame(conn, successFrame())
}

func (s *Server) runErase(conn net.Conn, segmentName string) (bool, ErrorCode) {
	idx := s.segs.Index(segmentName)
	seg := s.segs.Segment(segmentName)
	if err := s.t.FlashErase(uint8(idx)); err != nil {
		return false, ErrWrite
	}

	blocksTotal := seg.Size / 4096
	lastPct := int8(-1)
	for {
		blocks, err := s.t.FlashEraseProgress(idx)
		if err != nil {
			return false, ErrRead
		}
		if blocks == eraseDoneSentinel {
			break
		}
		pct := int8(0)
		if blocksTotal > 0 {
			pct = int8(uint32(blocks) * 100 / blocksTotal)
		}
		if pct != lastPct {
			writeFrame(conn, progressFrame(uint8(pct)))
			lastPct = pct
		}
		time.Sleep(erasePollInterval)
	}
	return true, 0
}

func (s *Server) runAppFirmwareUpdate(conn net.Conn, raw []byte) (bool, ErrorCode) {
	fp, err := ParseFirmwarePayload(raw)
	if err != nil {
		return false, ErrInvalidLength
	}
	if fp.VID != s.dfuVID || fp.PID != s.dfuPID {
		return false, ErrInvalidUSBID
	}
	upgrade := s.segs.Segment("App_Upgrade")
	if fp.Size < minAppFirmwareLen || fp.Size > upgrade.Size {
		return false, ErrInvalidLength
	}
	if !validateSHA256(fp.Data, fp.SHA256) {
		return false, ErrInvalidHash
	}

	idx := s.segs.Index("App_Upgrade")
	chunk := transport.MaxFlashWritePayload
	lastPct := int8(-1)
	for offset := 0; offset < len(fp.Data); offset += chunk {
		end := offset + chunk
		if end > len(fp.Data) {
			end = len(fp.Data)
		}
		if err := s.t.FlashWrite(idx, uint32(offset), fp.Data[offset:end]); err != nil {
			return false, ErrWrite
		}
		pct := int8(end * 100 / len(fp.Data))
		if pct != lastPct {
			writeFrame(conn, progressFrame(uint8(pct)))
			lastPct = pct
		}
	}
	return true, 0
}

func (s *Server) runESPFirmwareUpdate(ctx context.Context, conn net.Conn, raw []byte) (bool, ErrorCode) {
	fp, err := ParseFirmwarePayload(raw)
	if err != nil {
		return false, ErrInvalidLength
	}
	if !validateSHA256(fp.Data, fp.SHA256) {
		return false, ErrInvalidHash
	}

	eng := dfu.New(s.t, s.dfuDoc, func(pct uint8) {
		writeFrame(conn, progressFrame(pct))
	})
	if err := eng.Run(ctx, fp.VID, fp.PID, s.dfuVID, s.dfuPID, fp.Data); err != nil {
		log.Warn("socket: ESP firmware update failed", "err", err)
		return false, ErrFCP
	}
	return true, 0
}

func validateSHA256(data []byte, want [32]byte) bool {
	got := sha256.Sum256(data)
	return bytes.Equal(got[:], want[:])
}

func writeFrame(w io.Writer, f Frame) {
	_, _ = w.Write(f.Encode())
}
