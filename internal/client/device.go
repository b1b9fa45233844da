package client

import (
	"errors"

	"github.com/dkeye/vcall/internal/domain"
)

var ErrDeviceNotLoaded = errors.New("device not loaded")

// Device is the local capability model, loaded once from the router's
// capability descriptor during join.
type Device struct {
	caps   domain.RouterCapabilities
	loaded bool
}

func (d *Device) Load(caps domain.RouterCapabilities) {
	d.caps = caps
	d.loaded = true
}

func (d *Device) Loaded() bool { return d.loaded }

func (d *Device) Capabilities() (domain.RouterCapabilities, error) {
	if !d.loaded {
		return domain.RouterCapabilities{}, ErrDeviceNotLoaded
	}
	return d.caps, nil
}

func (d *Device) Supports(mimeType string) bool {
	return d.loaded && d.caps.Supports(mimeType)
}
