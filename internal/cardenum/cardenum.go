// Package cardenum resolves a sound-card number to the stable USB hardware
// serial number that identifies the same physical interface across a
// reboot/flash cycle, and polls for a serial's reappearance afterward (spec
// §4.9, §8 scenario 6). It correlates the card's ALSA sysfs entry to its
// USB device the same way the teacher's src/cm108.go correlates a sound
// card to its HID sibling: walk up from the card's sysfs node to the owning
// USB device and read its serial property, using go-udev instead of
// hand-rolled sysfs path parsing.
package cardenum

import (
	"fmt"
	"time"

	"github.com/jochenvg/go-udev"
)

// Card describes one enumerated sound card.
type Card struct {
	Number     int
	Serial     string
	SocketPath string
}

// Enumerator lists and resolves cards via udev.
type Enumerator struct {
	u *udev.Udev
}

// New returns an Enumerator backed by the system udev database.
func New() *Enumerator {
	return &Enumerator{u: &udev.Udev{}}
}

// Serial resolves card number to its USB device's serial number by walking
// up the sysfs device chain from the card's "sound/cardN" node to the
// nearest ancestor exposing ID_SERIAL_SHORT (the USB interface itself).
func (e *Enumerator) Serial(cardNum int) (string, error) {
	dev := e.u.NewDeviceFromSyspath(fmt.Sprintf("/sys/class/sound/card%d", cardNum))
	if dev == nil {
		return "", fmt.Errorf("cardenum: no sysfs entry for card %d", cardNum)
	}
	for d := dev; d != nil; d = d.ParentWithSubsystemDevtype("usb", "usb_device") {
		if serial := d.PropertyValue("ID_SERIAL_SHORT"); serial != "" {
			return serial, nil
		}
	}
	return "", fmt.Errorf("cardenum: no USB serial found for card %d", cardNum)
}

// List enumerates every sound card currently present.
func (e *Enumerator) List() ([]Card, error) {
	enum := e.u.NewEnumerate()
	if enum == nil {
		return nil, fmt.Errorf("cardenum: udev enumerate unavailable")
	}
	if err := enum.AddMatchSubsystem("sound"); err != nil {
		return nil, fmt.Errorf("cardenum: add match: %w", err)
	}
	devices, err := enum.Devices()
	if err != nil {
		return nil, fmt.Errorf("cardenum: list devices: %w", err)
	}

	seen := map[int]bool{}
	var cards []Card
	for _, d := range devices {
		num, ok := cardNumberFromSysname(d.Sysname())
		if !ok || seen[num] {
			continue
		}
		seen[num] = true
		serial, err := e.Serial(num)
		if err != nil {
			continue
		}
		cards = append(cards, Card{Number: num, Serial: serial})
	}
	return cards, nil
}

// cardNumberFromSysname parses "cardN" sysfs names; any other node under
// the sound subsystem (pcmC0D0p, controlC0, ...) is ignored.
func cardNumberFromSysname(name string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(name, "card%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

// WaitForSerial polls (at 1 Hz, up to timeout) for a card whose resolved
// USB serial equals wantSerial, returning its current card number (spec §4.9
// "wait up to 20s... one-second poll... for the same serial to reappear").
func (e *Enumerator) WaitForSerial(wantSerial string, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		cards, _ := e.List()
		for _, c := range cards {
			if c.Serial == wantSerial {
				return c.Number, nil
			}
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("cardenum: serial %s did not reappear within %s", wantSerial, timeout)
		}
		time.Sleep(1 * time.Second)
	}
}
