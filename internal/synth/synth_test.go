package synth

import (
	"fmt"
	"testing"

	"github.com/fcp-project/fcpd/internal/control"
	"github.com/fcp-project/fcpd/internal/devmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocAndMap(t *testing.T) (*devmap.Document, *ProductMap) {
	t.Helper()
	raw := []byte(`{
		"structs": {
			"APP_SPACE": {
				"members": {
					"global": {"type": "GLOBAL_T", "offset": 16}
				}
			},
			"GLOBAL_T": {
				"members": {
					"phantom": {"type": "bool", "offset": 2, "notify-client": 2},
					"name": {"type": "uint8", "offset": 3, "array-shape": [8]}
				}
			}
		},
		"enums": {
			"eDEV_FCP_USER_MESSAGE_TYPE": {"enumerators": {"FLASH_SAVE": 64, "AUX_DFU_CHANGE": 2}},
			"maximum_array_sizes": {"enumerators": {"mixer_outputs": 4}}
		},
		"device-specification": {
			"sources": [{"name": "Analog 1", "router-pin": 513}],
			"destinations": [{"name": "PCM 1", "router-pin": 16}],
			"physical-inputs": [],
			"physical-outputs": []
		}
	}`)
	doc, err := devmap.Parse(raw)
	require.NoError(t, err)

	pm := &ProductMap{
		GlobalControls: []GlobalControlSpec{
			{Path: "global.phantom", Name: "Phantom Power", Kind: "boolean"},
		},
	}
	return doc, pm
}

func TestSynthesizeBooleanGlobalControl(t *testing.T) {
	doc, pm := sampleDocAndMap(t)
	s := New(doc, pm, nil)
	res, err := s.Synthesize()
	require.NoError(t, err)

	c, _, ok := res.Set.Get(control.InterfaceCard, "Phantom Power")
	require.True(t, ok)
	assert.Equal(t, control.KindBoolean, c.Kind)
	assert.Equal(t, int64(0), c.Min)
	assert.Equal(t, int64(1), c.Max)
	assert.EqualValues(t, 2, c.NotifyClient)
}

func TestSaveRedirectsNotifyDevice(t *testing.T) {
	doc, pm := sampleDocAndMap(t)
	pm.GlobalControls[0].Save = true
	s := New(doc, pm, nil)
	res, err := s.Synthesize()
	require.NoError(t, err)

	c, _, ok := res.Set.Get(control.InterfaceCard, "Phantom Power")
	require.True(t, ok)
	assert.EqualValues(t, 64, c.NotifyDevice)
}

func TestSaveConflictsWithExplicitNotifyDevice(t *testing.T) {
	raw := []byte(`{
		"structs": {
			"APP_SPACE": {"members": {"x": {"type": "bool", "offset": 0, "notify-device": 9}}}
		},
		"enums": {"eDEV_FCP_USER_MESSAGE_TYPE": {"enumerators": {"FLASH_SAVE": 64}}},
		"device-specification": {"sources": [], "destinations": [], "physical-inputs": [], "physical-outputs": []}
	}`)
	doc, err := devmap.Parse(raw)
	require.NoError(t, err)
	pm := &ProductMap{GlobalControls: []GlobalControlSpec{
		{Path: "x", Name: "X", Kind: "boolean", Save: true},
	}}
	s := New(doc, pm, nil)
	_, err = s.Synthesize()
	assert.Error(t, err)
}

func TestEnumeratedWithMaxFromLabelFormat(t *testing.T) {
	doc, _ := sampleDocAndMap(t)
	pm := &ProductMap{GlobalControls: []GlobalControlSpec{
		{Path: "global.name", Name: "Output Group", Kind: "enum", MaxFrom: "mixer_outputs", LabelFormat: "Output %d"},
	}}
	s := New(doc, pm, nil)
	res, err := s.Synthesize()
	require.NoError(t, err)
	c, _, ok := res.Set.Get(control.InterfaceCard, "Output Group")
	require.True(t, ok)
	require.Len(t, c.EnumLabels, 4)
	assert.Equal(t, "Output 1", c.EnumLabels[0])
	assert.Equal(t, "Output 4", c.EnumLabels[3])
}

func TestNoTwoControlsShareInterfaceAndName(t *testing.T) {
	doc, pm := sampleDocAndMap(t)
	pm.GlobalControls = append(pm.GlobalControls, GlobalControlSpec{
		Path: "global.phantom", Name: "Phantom Power", Kind: "boolean",
	})
	s := New(doc, pm, nil)
	_, err := s.Synthesize()
	assert.Error(t, err)
}

func TestCompositeSkipsUnknownComponentsAndEnforcesCount(t *testing.T) {
	doc, _ := sampleDocAndMap(t)
	count := 2
	pm := &ProductMap{GlobalControls: []GlobalControlSpec{
		{
			Path: "global.phantom", Name: "Composite", Kind: "composite",
			ComponentSpecs: []string{"global.phantom:0:1", "global.missing:0:1", "global.name:0:1"},
			ComponentCount: &count,
		},
	}}
	s := New(doc, pm, nil)
	res, err := s.Synthesize()
	require.NoError(t, err)
	c, _, ok := res.Set.Get(control.InterfaceCard, "Composite")
	require.True(t, ok)
	assert.True(t, c.ReadOnly)
	assert.Len(t, c.Components, 2)
}

func TestInputOutputControlsSynthesizedAndLinked(t *testing.T) {
	raw := []byte(`{
		"structs": {
			"APP_SPACE": {
				"members": {
					"in_gain": {"type": "uint8", "offset": 4},
					"out_vol_a": {"type": "uint8", "offset": 8},
					"out_vol_b": {"type": "uint8", "offset": 9}
				}
			}
		},
		"enums": {"eDEV_FCP_USER_MESSAGE_TYPE": {"enumerators": {"FLASH_SAVE": 64}}},
		"device-specification": {"sources": [], "destinations": [], "physical-inputs": [], "physical-outputs": []}
	}`)
	doc, err := devmap.Parse(raw)
	require.NoError(t, err)

	pm := &ProductMap{
		Inputs: []IOBinding{
			{PhysicalIndex: 0, DeviceMember: "in_gain", LabelTemplate: "Input %02d Gain"},
		},
		Outputs: []IOBinding{
			{PhysicalIndex: 0, DeviceMember: "out_vol_a", LabelTemplate: "Mix %s Playback Volume"},
			{PhysicalIndex: 1, DeviceMember: "out_vol_b", LabelTemplate: "Mix %s Playback Volume"},
		},
		OutputLink: [][]int{{0, 1}},
	}
	s := New(doc, pm, nil)
	res, err := s.Synthesize()
	require.NoError(t, err)

	inCtrl, _, ok := res.Set.Get(control.InterfaceCard, "Input 01 Gain")
	require.True(t, ok)
	assert.Equal(t, control.KindInteger, inCtrl.Kind)

	a, idxA, ok := res.Set.Get(control.InterfaceMixer, "Mix A Playback Volume")
	require.True(t, ok)
	b, idxB, ok := res.Set.Get(control.InterfaceMixer, "Mix B Playback Volume")
	require.True(t, ok)

	assert.Equal(t, idxB, a.LinkedIndex)
	assert.Equal(t, idxA, b.LinkedIndex)
}

func TestBoolBitmapExpandsOneControlPerBit(t *testing.T) {
	doc, _ := sampleDocAndMap(t)
	count := 3
	pm := &ProductMap{GlobalControls: []GlobalControlSpec{
		{Path: "global.name", Name: "Output Group", Kind: "bool-bitmap", BitCount: &count},
	}}
	s := New(doc, pm, nil)
	res, err := s.Synthesize()
	require.NoError(t, err)

	for bit := 0; bit < count; bit++ {
		c, _, ok := res.Set.Get(control.InterfaceCard, fmt.Sprintf("Output Group %d", bit+1))
		require.True(t, ok, "bit %d", bit)
		assert.Equal(t, control.KindBoolean, c.Kind)
		assert.Equal(t, bit, c.ArrayIndex)
	}
	_, _, ok := res.Set.Get(control.InterfaceCard, fmt.Sprintf("Output Group %d", count+1))
	assert.False(t, ok)
}

func TestBoolMixerOutputsExpandsOneControlPerOutput(t *testing.T) {
	doc, _ := sampleDocAndMap(t)
	count := 2
	pm := &ProductMap{GlobalControls: []GlobalControlSpec{
		{Path: "global.name", Name: "Mute", Kind: "bool-mixer-outputs", BitCount: &count},
	}}
	s := New(doc, pm, nil)
	res, err := s.Synthesize()
	require.NoError(t, err)

	_, _, ok := res.Set.Get(control.InterfaceCard, "Mute A")
	require.True(t, ok)
	_, _, ok = res.Set.Get(control.InterfaceCard, "Mute B")
	require.True(t, ok)
	_, _, ok = res.Set.Get(control.InterfaceCard, "Mute C")
	assert.False(t, ok)
}

func TestCompositeRejectsCountMismatch(t *testing.T) {
	doc, _ := sampleDocAndMap(t)
	count := 5
	pm := &ProductMap{GlobalControls: []GlobalControlSpec{
		{
			Path: "global.phantom", Name: "Composite", Kind: "composite",
			ComponentSpecs: []string{"global.phantom:0:1"},
			ComponentCount: &count,
		},
	}}
	s := New(doc, pm, nil)
	_, err := s.Synthesize()
	assert.Error(t, err)
}
