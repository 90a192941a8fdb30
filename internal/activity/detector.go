// Package activity decides whether the local user is actively viewing the
// client. Only an active client accrues elapsed time.
package activity

import (
	"strings"
	"sync"
)

// DeviceClass is probed once at startup.
type DeviceClass int

const (
	// Pointer devices must keep the pointer inside the viewport to count as active.
	Pointer DeviceClass = iota
	// Touch devices have no hover state, so pointer containment is ignored.
	Touch
)

func (c DeviceClass) String() string {
	if c == Touch {
		return "touch"
	}
	return "pointer"
}

// Detector tracks the four activity flags. A new detector starts visible,
// focused and with the pointer inside, but unauthenticated.
type Detector struct {
	mu            sync.RWMutex
	class         DeviceClass
	authenticated bool
	focused       bool
	visible       bool
	pointerInside bool
}

func NewDetector(class DeviceClass) *Detector {
	return &Detector{
		class:         class,
		focused:       true,
		visible:       true,
		pointerInside: true,
	}
}

func (d *Detector) Class() DeviceClass {
	return d.class
}

func (d *Detector) SetAuthenticated(v bool) {
	d.mu.Lock()
	d.authenticated = v
	d.mu.Unlock()
}

func (d *Detector) SetFocused(v bool) {
	d.mu.Lock()
	d.focused = v
	d.mu.Unlock()
}

func (d *Detector) SetVisible(v bool) {
	d.mu.Lock()
	d.visible = v
	d.mu.Unlock()
}

func (d *Detector) SetPointerInside(v bool) {
	d.mu.Lock()
	d.pointerInside = v
	d.mu.Unlock()
}

// IsActive reports whether a tick should accrue time right now.
func (d *Detector) IsActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.authenticated || !d.visible || !d.focused {
		return false
	}
	if d.class == Touch {
		return true
	}
	return d.pointerInside
}

// ProbeDeviceClass picks the device class from the environment lookup.
// TIMEKEEPER_INPUT=touch|pointer wins; otherwise Termux implies touch.
func ProbeDeviceClass(lookup func(string) (string, bool)) DeviceClass {
	if v, ok := lookup("TIMEKEEPER_INPUT"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "touch":
			return Touch
		case "pointer":
			return Pointer
		}
	}
	if _, ok := lookup("TERMUX_VERSION"); ok {
		return Touch
	}
	return Pointer
}

// PointerInside reports whether a mouse position lies strictly inside a
// width x height window. The outermost row and column count as outside,
// which is where a pointer leaving the terminal is last seen.
func PointerInside(x, y, width, height int) bool {
	if width <= 2 || height <= 2 {
		return false
	}
	return x > 0 && y > 0 && x < width-1 && y < height-1
}
