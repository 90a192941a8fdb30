package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsActiveRequiresAuthentication(t *testing.T) {
	d := NewDetector(Pointer)
	assert.False(t, d.IsActive())
	d.SetAuthenticated(true)
	assert.True(t, d.IsActive())
}

func TestIsActivePointerDevice(t *testing.T) {
	tests := []struct {
		name    string
		focused bool
		visible bool
		inside  bool
		want    bool
	}{
		{"all set", true, true, true, true},
		{"blurred", false, true, true, false},
		{"hidden", true, false, true, false},
		{"pointer outside", true, true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(Pointer)
			d.SetAuthenticated(true)
			d.SetFocused(tt.focused)
			d.SetVisible(tt.visible)
			d.SetPointerInside(tt.inside)
			assert.Equal(t, tt.want, d.IsActive())
		})
	}
}

func TestIsActiveTouchIgnoresPointer(t *testing.T) {
	d := NewDetector(Touch)
	d.SetAuthenticated(true)
	d.SetPointerInside(false)
	assert.True(t, d.IsActive())

	d.SetFocused(false)
	assert.False(t, d.IsActive())
	d.SetFocused(true)
	d.SetVisible(false)
	assert.False(t, d.IsActive())
}

func TestProbeDeviceClass(t *testing.T) {
	env := func(vars map[string]string) func(string) (string, bool) {
		return func(key string) (string, bool) {
			v, ok := vars[key]
			return v, ok
		}
	}
	assert.Equal(t, Pointer, ProbeDeviceClass(env(nil)))
	assert.Equal(t, Touch, ProbeDeviceClass(env(map[string]string{"TERMUX_VERSION": "0.118"})))
	assert.Equal(t, Touch, ProbeDeviceClass(env(map[string]string{"TIMEKEEPER_INPUT": "Touch"})))
	assert.Equal(t, Pointer, ProbeDeviceClass(env(map[string]string{
		"TIMEKEEPER_INPUT": "pointer",
		"TERMUX_VERSION":   "0.118",
	})))
	assert.Equal(t, "touch", Touch.String())
}

func TestPointerInside(t *testing.T) {
	assert.True(t, PointerInside(5, 5, 80, 24))
	assert.False(t, PointerInside(0, 5, 80, 24))
	assert.False(t, PointerInside(79, 5, 80, 24))
	assert.False(t, PointerInside(5, 23, 80, 24))
	assert.False(t, PointerInside(1, 1, 0, 0))
}
