package transport

import "fmt"

// Primitive is the device-map primitive type set (spec §3): exactly these
// six names, each with a natural width and signedness. int8 is accepted
// throughout, per spec §9's resolved Open Question ("an implementer SHOULD
// accept int8 everywhere for completeness").
type Primitive string

const (
	PrimBool   Primitive = "bool"
	PrimUint8  Primitive = "uint8"
	PrimInt8   Primitive = "int8"
	PrimUint16 Primitive = "uint16"
	PrimInt16  Primitive = "int16"
	PrimUint32 Primitive = "uint32"
)

// NaturalWidth returns the byte width of p's natural representation.
func NaturalWidth(p Primitive) (int, error) {
	switch p {
	case PrimBool, PrimUint8, PrimInt8:
		return 1, nil
	case PrimUint16, PrimInt16:
		return 2, nil
	case PrimUint32:
		return 4, nil
	default:
		return 0, fmt.Errorf("transport: unknown primitive %q", p)
	}
}

// Signed reports whether p's natural representation is signed.
func Signed(p Primitive) bool {
	switch p {
	case PrimInt8, PrimInt16:
		return true
	default:
		return false
	}
}

// DataReadWidened reads size bytes at offset and widens them to a native int64,
// sign-extending when signed is true. size must be 1, 2, or 4.
func (t *Transport) DataReadWidened(offset, size uint32, signed bool) (int64, error) {
	raw, err := t.DataRead(offset, size)
	if err != nil {
		return 0, err
	}
	return WidenLE(raw, signed)
}

// WidenLE widens a 1/2/4-byte little-endian buffer into a native int64,
// sign-extending per signed.
func WidenLE(raw []byte, signed bool) (int64, error) {
	switch len(raw) {
	case 1:
		if signed {
			return int64(int8(raw[0])), nil
		}
		return int64(raw[0]), nil
	case 2:
		v := leUint16(raw)
		if signed {
			return int64(int16(v)), nil
		}
		return int64(v), nil
	case 4:
		v := leUint32(raw)
		if signed {
			return int64(int32(v)), nil
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("transport: widen: unsupported width %d", len(raw))
	}
}

// NarrowLE narrows value into a width-byte little-endian buffer (1, 2, or
// 4 bytes), writing the natural width exactly as fcp_data_write does.
func NarrowLE(value int64, width int) ([]byte, error) {
	buf := make([]byte, width)
	switch width {
	case 1:
		buf[0] = byte(value)
	case 2:
		putLeUint16(buf, uint16(value))
	case 4:
		putLeUint32(buf, uint32(value))
	default:
		return nil, fmt.Errorf("transport: narrow: unsupported width %d", width)
	}
	return buf, nil
}

// DataWriteNarrowed narrows value to width bytes and writes it at offset.
func (t *Transport) DataWriteNarrowed(offset uint32, value int64, width int) error {
	buf, err := NarrowLE(value, width)
	if err != nil {
		return err
	}
	return t.DataWrite(offset, buf)
}
