// Package devmap models the device-description document (spec §3, C2): a
// navigable tree of structs, enums, and a device-specification listing of
// sources/destinations/physical I/O, obtained once at startup either from
// an on-disk cache or, on a miss, over the kernel transport.
package devmap

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field describes one struct member.
type Field struct {
	Type         string `json:"type"`
	Offset       int    `json:"offset"`
	Size         *int   `json:"size,omitempty"`
	ArrayShape   []int  `json:"array-shape,omitempty"`
	NotifyDevice *int   `json:"notify-device,omitempty"`
	NotifyClient *int   `json:"notify-client,omitempty"`
}

// Struct is a named aggregate of fields.
type Struct struct {
	Members map[string]Field `json:"members"`
}

// Enum is a named set of integer enumerators.
type Enum struct {
	Enumerators map[string]int `json:"enumerators"`
}

// Endpoint is one source/destination/physical-input/physical-output entry
// in the device specification.
type Endpoint struct {
	Name            string `json:"name"`
	RouterPin       *int   `json:"router-pin,omitempty"`
	PeakIndex       *int   `json:"peak-index,omitempty"`
	MixerInputIndex *int   `json:"mixer-input-index,omitempty"`
}

// DeviceSpecification lists the device's I/O topology.
type DeviceSpecification struct {
	Sources         []Endpoint `json:"sources"`
	Destinations    []Endpoint `json:"destinations"`
	PhysicalInputs  []Endpoint `json:"physical-inputs"`
	PhysicalOutputs []Endpoint `json:"physical-outputs"`
}

// Document is the root of a parsed device map.
type Document struct {
	Structs             map[string]Struct   `json:"structs"`
	Enums                map[string]Enum     `json:"enums"`
	DeviceSpecification  DeviceSpecification `json:"device-specification"`
}

// RootStruct is the name of the device map's entry-point struct (spec §3).
const RootStruct = "APP_SPACE"

// Parse decodes raw JSON into a Document.
func Parse(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("devmap: parse: %w", err)
	}
	if _, ok := doc.Structs[RootStruct]; !ok {
		return nil, fmt.Errorf("devmap: parse: missing root struct %q", RootStruct)
	}
	return &doc, nil
}

// ResolvedPath is the result of walking a dotted member path from
// RootStruct: the leaf field, its accumulated byte offset, and the last
// non-null notify-device/notify-client seen along the way.
type ResolvedPath struct {
	Field        Field
	Offset       int
	NotifyDevice *int
	NotifyClient *int
}

// Resolve walks a dotted path such as "mixer.coeff" starting at
// structs.APP_SPACE.members, accumulating offsets and remembering the last
// non-null notify-device/notify-client seen. If allowMissing is true and a
// token is absent, it returns (nil, nil) without an error or log; otherwise
// a missing token is an error the caller is expected to log.
func (d *Document) Resolve(path string, allowMissing bool) (*ResolvedPath, error) {
	tokens := strings.Split(path, ".")
	if len(tokens) == 0 {
		return nil, fmt.Errorf("devmap: resolve: empty path")
	}

	currentStruct := RootStruct
	var offset int
	var notifyDevice, notifyClient *int
	var field Field

	for i, tok := range tokens {
		st, ok := d.Structs[currentStruct]
		if !ok {
			return missingOrError(allowMissing, "devmap: resolve %q: struct %q not found", path, currentStruct)
		}
		f, ok := st.Members[tok]
		if !ok {
			return missingOrError(allowMissing, "devmap: resolve %q: member %q not found in %q", path, tok, currentStruct)
		}
		offset += f.Offset
		if f.NotifyDevice != nil {
			notifyDevice = f.NotifyDevice
		}
		if f.NotifyClient != nil {
			notifyClient = f.NotifyClient
		}
		field = f
		if i < len(tokens)-1 {
			currentStruct = f.Type
		}
	}

	return &ResolvedPath{
		Field:        field,
		Offset:       offset,
		NotifyDevice: notifyDevice,
		NotifyClient: notifyClient,
	}, nil
}

func missingOrError(allowMissing bool, format string, args ...any) (*ResolvedPath, error) {
	if allowMissing {
		return nil, nil
	}
	return nil, fmt.Errorf(format, args...)
}

// EnumValue returns the integer value of a named enumerator, or an error if
// the enum or symbol is absent.
func (d *Document) EnumValue(enumName, symbol string) (int, error) {
	e, ok := d.Enums[enumName]
	if !ok {
		return 0, fmt.Errorf("devmap: enum %q not found", enumName)
	}
	v, ok := e.Enumerators[symbol]
	if !ok {
		return 0, fmt.Errorf("devmap: enum %q has no symbol %q", enumName, symbol)
	}
	return v, nil
}

// MaxArraySize looks up a bound from the well-known maximum_array_sizes
// enum (spec §3).
func (d *Document) MaxArraySize(name string) (int, error) {
	return d.EnumValue("maximum_array_sizes", name)
}
