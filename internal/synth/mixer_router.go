package synth

import (
	"fmt"
	"strings"

	"github.com/fcp-project/fcpd/internal/cache"
	"github.com/fcp-project/fcpd/internal/control"
)

// Mixer coefficient range and TLV shape (spec §4.3 "Mixer controls").
const (
	mixerCoeffMin = 0
	mixerCoeffMax = 32613
	mixerCoeffStep = 1
)

// mixerDBTLV encodes a linear-dB-with-mute TLV, +12 dB max, the fixed shape
// every mixer control carries.
func mixerDBTLV() []byte {
	return encodeDBRangeTLV(-999900, 1200) // centidecibels: effectively -inf..+12dB, mute handled by the surface library
}

// synthesizeMixerControls queries mix.info and creates one integer control
// per (output row, mapped input), wired through a Mixer cache.
func (s *Synthesizer) synthesizeMixerControls(set *control.Set) (*cache.Mixer, error) {
	outCount, inCount, err := s.tr.MixInfo()
	if err != nil {
		return nil, fmt.Errorf("mix.info: %w", err)
	}

	mixer := cache.NewMixer(s.tr, int(outCount), int(inCount))

	for row := 0; row < int(outCount); row++ {
		for col, inputName := range s.pm.MixerInputs {
			if col >= int(inCount) {
				break
			}
			name := fmt.Sprintf("Mix %s Input %02d Playback Volume", outputLetter(row), col+1)
			r, c := row, col
			ctrl := &control.Control{
				Name:        name,
				Interface:   control.InterfaceMixer,
				Kind:        control.KindInteger,
				Category:    control.CategoryMix,
				Min:         mixerCoeffMin,
				Max:         mixerCoeffMax,
				Step:        mixerCoeffStep,
				TLV:         mixerDBTLV(),
				LinkedIndex: -1,
			}
			ctrl.Read = func() ([]int64, error) {
				v, err := mixer.Read(r, c)
				if err != nil {
					return nil, err
				}
				return []int64{int64(v)}, nil
			}
			ctrl.Write = func(values []int64) error {
				return mixer.Write(r, c, uint16(values[0]))
			}
			_ = inputName
			if _, err := set.Add(ctrl); err != nil {
				return nil, err
			}
		}
	}

	return mixer, nil
}

// outputLetter names mixer rows "A", "B", ... matching how hardware
// mixer-output labels are usually presented.
func outputLetter(row int) string {
	return string(rune('A' + row))
}

// resolveDestinationPin looks a named destination up in the device map's
// device-specification.destinations list and returns its router-pin.
func (s *Synthesizer) resolveDestinationPin(name string) (int, error) {
	for _, d := range s.doc.DeviceSpecification.Destinations {
		if d.Name == name && d.RouterPin != nil {
			return *d.RouterPin, nil
		}
	}
	return 0, fmt.Errorf("router destination %q not found in device-specification", name)
}

// synthesizeRouterControls queries mux.info, builds the router cache, and
// creates one enumerated control per product-map destination.
func (s *Synthesizer) synthesizeRouterControls(set *control.Set) (*cache.Router, error) {
	sizes, err := s.tr.MuxInfo()
	if err != nil {
		return nil, fmt.Errorf("mux.info: %w", err)
	}
	var sz [cache.RateGroupCount]int
	for i, v := range sizes {
		sz[i] = int(v)
	}
	router := cache.NewRouter(s.tr, sz)

	type inputChoice struct {
		label string
		pin   int
	}
	inputs := []inputChoice{{label: "Off", pin: 0}}
	for _, src := range s.pm.Sources {
		if src.RouterPin == nil {
			continue
		}
		inputs = append(inputs, inputChoice{label: src.SurfaceName, pin: *src.RouterPin})
	}

	for _, dest := range s.pm.RouterDestinations {
		destPin, err := s.resolveDestinationPin(dest.DeviceMember)
		if err != nil {
			return nil, err
		}

		labels := make([]string, len(inputs))
		for i, in := range inputs {
			labels[i] = in.label
		}

		suffix := "Playback Enum"
		if strings.HasPrefix(dest.Name, "PCM") || strings.HasPrefix(dest.Name, "Mixer") {
			suffix = "Capture Enum"
		}
		name := fmt.Sprintf("%s %s", dest.Name, suffix)

		ctrl := &control.Control{
			Name:        name,
			Interface:   control.InterfaceCard,
			Kind:        control.KindEnumerated,
			Category:    control.CategoryMux,
			EnumLabels:  labels,
			Min:         0,
			Max:         int64(len(labels) - 1),
			LinkedIndex: -1,
		}

		if dest.StaticSource != "" {
			staticIdx := 0
			for i, in := range inputs {
				if in.label == dest.StaticSource {
					staticIdx = i
					break
				}
			}
			ctrl.ReadOnly = true
			ctrl.Value = []int64{int64(staticIdx)}
			ctrl.Read = func() ([]int64, error) { return []int64{int64(staticIdx)}, nil }
			ctrl.Write = func(values []int64) error {
				return fmt.Errorf("control %q is read-only (static source)", name)
			}
			if _, err := set.Add(ctrl); err != nil {
				return nil, err
			}
			continue
		}

		slots, err := router.FindSlotForPin(destPin)
		if err != nil {
			return nil, err
		}
		dp := destPin
		ins := inputs
		ctrl.Read = func() ([]int64, error) {
			for rate, slot := range slots {
				if slot < 0 {
					continue
				}
				v, err := router.Read(rate, slot)
				if err != nil {
					return nil, err
				}
				_, srcPin := cache.DecodeSlot(v)
				for i, in := range ins {
					if in.pin == srcPin {
						return []int64{int64(i)}, nil
					}
				}
			}
			return []int64{0}, nil
		}
		ctrl.Write = func(values []int64) error {
			idx := int(values[0])
			if idx < 0 || idx >= len(ins) {
				return fmt.Errorf("control %q: index %d out of range", name, idx)
			}
			return router.WriteAcrossRates(slots, dp, ins[idx].pin)
		}

		if _, err := set.Add(ctrl); err != nil {
			return nil, err
		}
	}

	return router, nil
}

// syncLabels are the two enumerators a sync control can report.
var syncLabels = []string{"Unlocked", "Locked"}

// synthesizeSync creates the read-only Sync control.
func (s *Synthesizer) synthesizeSync(set *control.Set) error {
	ctrl := &control.Control{
		Name:         "Sync Source Lock Status",
		Interface:    control.InterfaceCard,
		Kind:         control.KindEnumerated,
		Category:     control.CategorySync,
		EnumLabels:   syncLabels,
		Min:          0,
		Max:          int64(len(syncLabels) - 1),
		ReadOnly:     true,
		NotifyClient: syncNotifyBit,
		LinkedIndex:  -1,
	}
	tr := s.tr
	ctrl.Read = func() ([]int64, error) {
		v, err := tr.SyncRead()
		if err != nil {
			return nil, err
		}
		if v != 0 {
			return []int64{1}, nil
		}
		return []int64{0}, nil
	}
	ctrl.Write = func(values []int64) error {
		return fmt.Errorf("sync control is read-only")
	}
	_, err := set.Add(ctrl)
	return err
}

// wireOutputLinks pairs volume controls per pm.OutputLink (spec §4.3
// "Linked outputs"): writing to one output's volume immediately issues the
// same write to its paired index, then both are re-read through the
// ordinary notification path so the surface reflects device-side clamping.
// Pairing is even/odd neighbour within each link list; controls are linked
// by stable index, never by pointer.
func (s *Synthesizer) wireOutputLinks(set *control.Set) error {
	for _, link := range s.pm.OutputLink {
		for i := 0; i+1 < len(link); i += 2 {
			a, b := link[i], link[i+1]
			nameA, haveA := s.outputNames[a]
			nameB, haveB := s.outputNames[b]
			if !haveA || !haveB {
				continue
			}
			_, idxA, okA := set.Get(control.InterfaceMixer, nameA)
			_, idxB, okB := set.Get(control.InterfaceMixer, nameB)
			if !okA || !okB {
				continue
			}
			set.At(idxA).LinkedIndex = idxB
			set.At(idxB).LinkedIndex = idxA
		}
	}
	return nil
}
