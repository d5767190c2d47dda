// Package socket implements C8: the per-card client socket protocol that
// drives reboot, flash erase, and firmware update operations, framed over a
// UNIX-domain stream socket (spec §4.7).
package socket

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Direction magic bytes; distinct and stable across both ends (spec §4.7).
const (
	MagicRequest  byte = 0xA5
	MagicResponse byte = 0x5A
)

// MaxPayloadLen bounds a single frame's payload so a malformed length field
// can never trigger an unbounded allocation; large enough for any firmware
// image this protocol carries.
const MaxPayloadLen = 32 * 1024 * 1024

// headerLen is the fixed {magic, msg_type, payload_length} prefix.
const headerLen = 1 + 1 + 2

// RequestType enumerates client-to-daemon message kinds.
type RequestType byte

const (
	ReqReboot            RequestType = 0
	ReqConfigErase       RequestType = 1
	ReqAppFirmwareErase  RequestType = 2
	ReqAppFirmwareUpdate RequestType = 3
	ReqESPFirmwareUpdate RequestType = 4
)

// ResponseType enumerates daemon-to-client message kinds.
type ResponseType byte

const (
	RespProgress ResponseType = 0
	RespError    ResponseType = 1
	RespSuccess  ResponseType = 2
)

// ErrorCode is the fixed numeric table indexing a message known to both
// sides (spec §6 "Error codes on the socket").
type ErrorCode int16

const (
	ErrInvalidMagic   ErrorCode = 0
	ErrInvalidLength  ErrorCode = 1
	ErrInvalidCommand ErrorCode = 2
	ErrInvalidHash    ErrorCode = 3
	ErrInvalidUSBID   ErrorCode = 4
	ErrInvalidState   ErrorCode = 5
	ErrNotLeapfrog    ErrorCode = 6
	ErrRead           ErrorCode = 7
	ErrWrite          ErrorCode = 8
	ErrTimeout        ErrorCode = 9
	ErrFCP            ErrorCode = 10
	ErrConfig         ErrorCode = 11
)

// ErrorMessages mirrors the table both sides share (spec §7 "errors are
// printed ... followed by the table message").
var ErrorMessages = map[ErrorCode]string{
	ErrInvalidMagic:   "invalid magic",
	ErrInvalidLength:  "invalid length",
	ErrInvalidCommand: "invalid command",
	ErrInvalidHash:    "invalid hash",
	ErrInvalidUSBID:   "invalid USB id",
	ErrInvalidState:   "invalid state",
	ErrNotLeapfrog:    "device is not running leapfrog firmware",
	ErrRead:           "read error",
	ErrWrite:          "write error",
	ErrTimeout:        "timed out",
	ErrFCP:            "protocol error",
	ErrConfig:         "configuration error",
}

func (e ErrorCode) Error() string {
	if msg, ok := ErrorMessages[e]; ok {
		return msg
	}
	return fmt.Sprintf("unknown error code %d", int16(e))
}

// Frame is one decoded protocol message.
type Frame struct {
	Magic   byte
	Type    byte
	Payload []byte
}

// Encode serializes a frame to its on-wire representation.
func (f Frame) Encode() []byte {
	buf := make([]byte, headerLen+len(f.Payload))
	buf[0] = f.Magic
	buf[1] = f.Type
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(f.Payload)))
	copy(buf[4:], f.Payload)
	return buf
}

// RequestFrame builds a client-to-daemon request frame for t with the given
// payload (nil for the no-payload request types).
func RequestFrame(t RequestType, payload []byte) Frame {
	return Frame{Magic: MagicRequest, Type: byte(t), Payload: payload}
}

// ReadFrame reads one length-framed message from r (spec §4.7 framing),
// shared by both the daemon's request side and the client's response side.
func ReadFrame(r io.Reader) (Frame, error) {
	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Frame{}, err
	}
	length := binary.LittleEndian.Uint16(hdr[2:4])
	if int(length) > MaxPayloadLen {
		return Frame{}, fmt.Errorf("socket: payload length %d exceeds max", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Magic: hdr[0], Type: hdr[1], Payload: payload}, nil
}

func progressFrame(pct uint8) Frame {
	return Frame{Magic: MagicResponse, Type: byte(RespProgress), Payload: []byte{pct}}
}

func successFrame() Frame {
	return Frame{Magic: MagicResponse, Type: byte(RespSuccess)}
}

func errorFrame(code ErrorCode) Frame {
	payload := make([]byte, 2)
	binary.LittleEndian.PutUint16(payload, uint16(code))
	return Frame{Magic: MagicResponse, Type: byte(RespError), Payload: payload}
}

// FirmwarePayload is the prefix carried by APP_FIRMWARE_UPDATE and
// ESP_FIRMWARE_UPDATE requests (spec §4.7).
type FirmwarePayload struct {
	Size   uint32
	VID    uint16
	PID    uint16
	SHA256 [32]byte
	MD5    [16]byte
	Data   []byte
}

const firmwarePayloadHeaderLen = 4 + 2 + 2 + 32 + 16

// ParseFirmwarePayload decodes the fixed-size prefix and validates that the
// declared size matches the remaining bytes.
func ParseFirmwarePayload(raw []byte) (FirmwarePayload, error) {
	if len(raw) < firmwarePayloadHeaderLen {
		return FirmwarePayload{}, fmt.Errorf("socket: short firmware payload header")
	}
	var fp FirmwarePayload
	fp.Size = binary.LittleEndian.Uint32(raw[0:4])
	fp.VID = binary.LittleEndian.Uint16(raw[4:6])
	fp.PID = binary.LittleEndian.Uint16(raw[6:8])
	copy(fp.SHA256[:], raw[8:40])
	copy(fp.MD5[:], raw[40:56])

	rest := raw[firmwarePayloadHeaderLen:]
	if uint32(len(rest)) != fp.Size {
		return FirmwarePayload{}, fmt.Errorf("socket: declared size %d does not match %d trailing bytes", fp.Size, len(rest))
	}
	fp.Data = rest
	return fp, nil
}

// Encode serializes a FirmwarePayload back to its wire prefix+data form, for
// the client side of APP_FIRMWARE_UPDATE / ESP_FIRMWARE_UPDATE requests.
func (fp FirmwarePayload) Encode() []byte {
	buf := make([]byte, firmwarePayloadHeaderLen+len(fp.Data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(fp.Data)))
	binary.LittleEndian.PutUint16(buf[4:6], fp.VID)
	binary.LittleEndian.PutUint16(buf[6:8], fp.PID)
	copy(buf[8:40], fp.SHA256[:])
	copy(buf[40:56], fp.MD5[:])
	copy(buf[firmwarePayloadHeaderLen:], fp.Data)
	return buf
}
