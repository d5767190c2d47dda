// Package synth is C4: it walks the device map (C2) plus a per-product
// mapping document to synthesize the control set (C3) — input, output,
// global, mixer, router ("mux"), sync, and meter controls.
package synth

import (
	"encoding/json"
	"fmt"
)

// GlobalControlSpec describes one entry in the product map's
// "global-controls" list: a dotted APP_SPACE path plus the kind-specific
// synthesis instructions for it (spec §4.3).
type GlobalControlSpec struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	Kind         string `json:"kind"` // "boolean" | "integer" | "enum" | "bytes" | "bool-bitmap" | "bool-mixer-outputs" | "composite"
	Save         bool   `json:"save,omitempty"`
	AllowMissing bool   `json:"allow-missing,omitempty"`

	// integer
	Min   *int64 `json:"min,omitempty"`
	Max   *int64 `json:"max,omitempty"`
	DBMin *int64 `json:"db-min,omitempty"`
	DBMax *int64 `json:"db-max,omitempty"`

	// enumerated
	Values      []string     `json:"values,omitempty"`
	ValueObjects []EnumValue `json:"value-objects,omitempty"`
	MaxFrom     string       `json:"max-from,omitempty"`
	LabelFormat string       `json:"label-format,omitempty"`

	// bytes
	Size *int `json:"size,omitempty"`

	// bool-bitmap / bool-mixer-outputs
	BitCount *int `json:"bit-count,omitempty"`

	// composite: "path:offset_adjust:width" triples
	ComponentSpecs []string `json:"components,omitempty"`
	ComponentCount *int     `json:"component-count,omitempty"`
}

// EnumValue is one {name, value?} object in an enumerated control's
// "value-objects" list; Value is nil when the mapping is direct (index == value).
type EnumValue struct {
	Name  string `json:"name"`
	Value *int   `json:"value,omitempty"`
}

// IOBinding binds a physical input/output index to a device-map member and
// a label template.
type IOBinding struct {
	PhysicalIndex int    `json:"physical-index"`
	DeviceMember  string `json:"device-member"`
	LabelTemplate string `json:"label-template"`
}

// NamedLink links a device-map name to an audio-control-surface name, used
// for both "sources" and "sinks" lists.
type NamedLink struct {
	DeviceName string `json:"device-name"`
	SurfaceName string `json:"surface-name"`
	RouterPin   *int   `json:"router-pin,omitempty"`
	PeakIndex   *int   `json:"peak-index,omitempty"`
}

// RouterDestination is one destination entry in the product map's router
// section.
type RouterDestination struct {
	Name         string `json:"name"`
	DeviceMember string `json:"device-member"`
	StaticSource string `json:"static-source,omitempty"`
}

// ProductMap is the per-product companion document (spec §3 "Product
// control map").
type ProductMap struct {
	ProductID uint16 `json:"product-id"`

	Inputs  []IOBinding `json:"inputs"`
	Outputs []IOBinding `json:"outputs"`

	Sources []NamedLink `json:"sources"`
	Sinks   []NamedLink `json:"sinks"`

	OutputGroupSources []int `json:"output-group-sources"`
	OutputLink         [][]int `json:"output-link"`

	GlobalControls []GlobalControlSpec `json:"global-controls"`

	MixerInputs      []string            `json:"mixer-inputs"`
	RouterDestinations []RouterDestination `json:"router-destinations"`
}

// ParseProductMap decodes the per-product mapping document fetched by
// devmap.Loader.LoadProductMap.
func ParseProductMap(raw []byte) (*ProductMap, error) {
	var pm ProductMap
	if err := json.Unmarshal(raw, &pm); err != nil {
		return nil, fmt.Errorf("synth: parse product map: %w", err)
	}
	return &pm, nil
}
