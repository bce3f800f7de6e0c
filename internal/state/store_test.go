package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type change struct {
	point, old, new string
}

func TestStoreGetUnknown(t *testing.T) {
	s := NewStore()
	v, ok := s.Get("light.bathroom")
	require.False(t, ok)
	require.Empty(t, v)
}

func TestStoreSetNotifiesOnChangeOnly(t *testing.T) {
	s := NewStore()
	var got []change
	s.Subscribe("light.bathroom", func(point, old, new string) {
		got = append(got, change{point, old, new})
	})

	s.Set("light.bathroom", "off")
	s.Set("light.bathroom", "off")
	s.Set("light.bathroom", "on")
	s.Set("switch.fan", "on")

	require.Equal(t, []change{
		{"light.bathroom", "", "off"},
		{"light.bathroom", "off", "on"},
	}, got)

	v, ok := s.Get("light.bathroom")
	require.True(t, ok)
	require.Equal(t, "on", v)
}

func TestStoreUnsubscribe(t *testing.T) {
	s := NewStore()
	var a, b int
	unsubA := s.Subscribe("switch.fan", func(string, string, string) { a++ })
	s.Subscribe("switch.fan", func(string, string, string) { b++ })

	s.Set("switch.fan", "on")
	unsubA()
	unsubA()
	s.Set("switch.fan", "off")

	require.Equal(t, 1, a)
	require.Equal(t, 2, b)
}

func TestStoreHandlerMayReenter(t *testing.T) {
	s := NewStore()
	s.Subscribe("switch.fan", func(_, _, new string) {
		// Handlers run outside the lock, so reading and writing is allowed.
		if v, _ := s.Get("switch.fan"); v != new {
			t.Errorf("Get inside handler: got %q, want %q", v, new)
		}
		s.Set("sensor.adlog", "fan "+new)
	})

	s.Set("switch.fan", "on")

	v, _ := s.Get("sensor.adlog")
	require.Equal(t, "fan on", v)
}

func TestStorePointsIsCopy(t *testing.T) {
	s := NewStore()
	s.Set("a", "1")
	p := s.Points()
	p["a"] = "2"

	v, _ := s.Get("a")
	require.Equal(t, "1", v)
}
