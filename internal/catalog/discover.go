package catalog

import (
	"fmt"

	udev "github.com/jochenvg/go-udev"
)

// DiscoveredDevice is one sound-subsystem node udev reports.
type DiscoveredDevice struct {
	DevNode string
	SysPath string
	Product string
}

// DiscoverSoundDevices enumerates the host's sound-subsystem device nodes
// via udev. It is the pure-Go replacement for src/cm108.go's
// cm108_inventory, which shelled out to cgo libudev to pair a USB sound
// card with its HID; repurposed here from "find the PTT HID" to "list
// sound nodes". Nothing calls it at boot; the catalog's DeviceType table is
// the static list in catalog.go.
func DiscoverSoundDevices() ([]DiscoveredDevice, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("sound"); err != nil {
		return nil, fmt.Errorf("catalog: udev match subsystem: %w", err)
	}

	devices, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("catalog: udev enumerate: %w", err)
	}

	out := make([]DiscoveredDevice, 0, len(devices))
	for _, d := range devices {
		node := d.Devnode()
		if node == "" {
			continue
		}
		out = append(out, DiscoveredDevice{
			DevNode: node,
			SysPath: d.Syspath(),
			Product: d.PropertyValue("ID_MODEL"),
		})
	}
	return out, nil
}
