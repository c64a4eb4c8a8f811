package device

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// Validation constants.
const (
	maxNameLength = 100
	maxHostLength = 253

	// Size limits for the status snapshot. Purifiers report a few dozen
	// keys; these limits only guard against a misbehaving link.
	maxStatusKeys     = 200
	maxStringValueLen = 1024
	maxNestingDepth   = 5
)

// ValidateDevice performs validation on a device.
// Returns an error describing the first validation failure found.
func ValidateDevice(d *Device) error {
	if d == nil {
		return ErrInvalidDevice
	}

	if err := ValidateName(d.Name); err != nil {
		return err
	}

	if err := ValidateHost(d.Host); err != nil {
		return err
	}

	if d.MAC != "" {
		if err := ValidateMAC(d.MAC); err != nil {
			return err
		}
	}

	return validateStatus(d.Status)
}

// ValidateName checks that a device name is present and reasonably sized.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

// ValidateHost accepts an IP address or hostname, optionally with a port.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidHost)
	}
	if len(host) > maxHostLength {
		return fmt.Errorf("%w: host exceeds %d characters", ErrInvalidHost, maxHostLength)
	}

	name := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		name = h
	}
	if name == "" || strings.ContainsAny(name, " /\\?#@") {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return nil
}

// ValidateMAC checks a hardware address in colon or hyphen notation.
func ValidateMAC(mac string) error {
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) != 6 {
		return fmt.Errorf("%w: %q", ErrInvalidMAC, mac)
	}
	return nil
}

func validateStatus(status map[string]any) error {
	if len(status) > maxStatusKeys {
		return fmt.Errorf("%w: %d keys exceeds limit of %d", ErrInvalidStatus, len(status), maxStatusKeys)
	}
	for k, v := range status {
		if err := validateValue(v, k, 0); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(v any, key string, depth int) error {
	if depth > maxNestingDepth {
		return fmt.Errorf("%w: %s nested too deeply", ErrInvalidStatus, key)
	}
	switch val := v.(type) {
	case string:
		if len(val) > maxStringValueLen {
			return fmt.Errorf("%w: %s value exceeds %d characters", ErrInvalidStatus, key, maxStringValueLen)
		}
	case map[string]any:
		for k, inner := range val {
			if err := validateValue(inner, key+"."+k, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, inner := range val {
			if err := validateValue(inner, key, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// NormaliseMAC returns a MAC address in lower-case colon notation.
// Invalid input is returned unchanged.
func NormaliseMAC(mac string) string {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return mac
	}
	return hw.String()
}

// GenerateID creates a new UUID for a device.
func GenerateID() string {
	return uuid.New().String()
}
