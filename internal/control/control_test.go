package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddRejectsDuplicateInterfaceName(t *testing.T) {
	s := NewSet()
	_, err := s.Add(&Control{Name: "Master Volume", Interface: InterfaceMixer})
	require.NoError(t, err)
	_, err = s.Add(&Control{Name: "Master Volume", Interface: InterfaceMixer})
	assert.Error(t, err)
}

func TestAddAllowsSameNameOnDifferentInterface(t *testing.T) {
	s := NewSet()
	_, err := s.Add(&Control{Name: "Master Volume", Interface: InterfaceMixer})
	require.NoError(t, err)
	_, err = s.Add(&Control{Name: "Master Volume", Interface: InterfaceCard})
	assert.NoError(t, err)
}

func TestGetAndAtAgree(t *testing.T) {
	s := NewSet()
	idx, err := s.Add(&Control{Name: "Sync", Interface: InterfaceCard})
	require.NoError(t, err)
	c, gotIdx, ok := s.Get(InterfaceCard, "Sync")
	require.True(t, ok)
	assert.Equal(t, idx, gotIdx)
	assert.Same(t, c, s.At(idx))
}

func TestByNotifyMaskFiltersByIntersection(t *testing.T) {
	s := NewSet()
	_, _ = s.Add(&Control{Name: "A", Interface: InterfaceCard, NotifyClient: 0x4})
	_, _ = s.Add(&Control{Name: "B", Interface: InterfaceCard, NotifyClient: 0x6})
	_, _ = s.Add(&Control{Name: "C", Interface: InterfaceCard, NotifyClient: 0x14})
	_, _ = s.Add(&Control{Name: "D", Interface: InterfaceCard, NotifyClient: 0x8})

	matched := s.ByNotifyMask(0x4)
	var names []string
	for _, c := range matched {
		names = append(names, c.Name)
	}
	assert.ElementsMatch(t, []string{"A", "B", "C"}, names)
}

func TestValueVectorSizedToComponentCount(t *testing.T) {
	s := NewSet()
	_, err := s.Add(&Control{
		Name:      "Composite",
		Interface: InterfaceCard,
		Components: []Component{
			{Offset: 0, Width: 1},
			{Offset: 1, Width: 2},
		},
	})
	require.NoError(t, err)
	c, _, _ := s.Get(InterfaceCard, "Composite")
	assert.Len(t, c.Value, 2)
}
