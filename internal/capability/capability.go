// Package capability describes what each purifier model supports and
// how a user-facing setting maps onto device status keys.
//
// The coordinator is model-agnostic; services and the API consult this
// table to turn "preset sleep" into the ordered control writes the
// particular model expects.
package capability

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
)

// Status keys used by the classic (AC2729-style) protocol.
const (
	KeyPower           = "pwr"
	KeyMode            = "mode"
	KeySpeed           = "om"
	KeyChildLock       = "cl"
	KeyDisplayLight    = "uil"
	KeyLightBrightness = "aqil"
	KeyPreferredIndex  = "ddp"
	KeyHumidityTarget  = "rhset"
	KeyFunction        = "func"
	KeyTimer           = "dt"
	KeyErrorCode       = "err"
)

// Status keys used by the newer (AC1715-style) protocol.
const (
	KeyNewPower        = "D03-02"
	KeyNewMode         = "D03-12"
	KeyNewDisplayLight = "D03-05"
)

// Preset mode and speed names.
const (
	PresetAuto     = "auto"
	PresetAllergen = "allergen"
	PresetBacteria = "bacteria"
	PresetNight    = "night"
	PresetSleep    = "sleep"
	PresetGentle   = "gentle"
	PresetSpeed1   = "speed_1"
	PresetSpeed2   = "speed_2"
	PresetSpeed3   = "speed_3"
	PresetTurbo    = "turbo"
)

// ErrUnsupported is returned when a model has no pattern for a request.
var ErrUnsupported = errors.New("capability: not supported by model")

// Pattern is a named, ordered set of control writes.
type Pattern struct {
	Name     string                `json:"name"`
	Controls []coordinator.Control `json:"controls"`
}

// Filter pairs a remaining-life status key with its total-life key.
type Filter struct {
	Name      string `json:"name"`
	StatusKey string `json:"status_key"`
	TotalKey  string `json:"total_key"`
}

// Model is the capability record for one purifier model.
type Model struct {
	Name        string    `json:"name"`
	PowerKey    string    `json:"power_key"`
	PowerOn     any       `json:"power_on"`
	PowerOff    any       `json:"power_off"`
	Presets     []Pattern `json:"presets"`
	Speeds      []Pattern `json:"speeds"`
	Switches    []string  `json:"switches,omitempty"`
	Selects     []string  `json:"selects,omitempty"`
	Lights      []string  `json:"lights,omitempty"`
	Filters     []Filter  `json:"filters"`
	Humidifier  bool      `json:"humidifier"`
	DisplayKey  string    `json:"display_key"`
	TimerKey    string    `json:"timer_key,omitempty"`
	ChildLockOK bool      `json:"child_lock"`
}

// Preset returns the control pattern for a preset mode.
func (m Model) Preset(name string) ([]coordinator.Control, error) {
	return find(m.Presets, name, m.Name, "preset")
}

// Speed returns the control pattern for a fan speed.
func (m Model) Speed(name string) ([]coordinator.Control, error) {
	return find(m.Speeds, name, m.Name, "speed")
}

// Power returns the single control that switches the device on or off.
func (m Model) Power(on bool) coordinator.Control {
	if on {
		return coordinator.Control{Key: m.PowerKey, Value: m.PowerOn}
	}
	return coordinator.Control{Key: m.PowerKey, Value: m.PowerOff}
}

// PresetNames lists the preset modes in table order.
func (m Model) PresetNames() []string {
	return names(m.Presets)
}

// SpeedNames lists the fan speeds in table order.
func (m Model) SpeedNames() []string {
	return names(m.Speeds)
}

// FilterByName returns the filter with the given name.
func (m Model) FilterByName(name string) (Filter, bool) {
	for _, f := range m.Filters {
		if f.Name == name {
			return f, true
		}
	}
	return Filter{}, false
}

func find(patterns []Pattern, name, model, kind string) ([]coordinator.Control, error) {
	for _, p := range patterns {
		if p.Name == name {
			out := make([]coordinator.Control, len(p.Controls))
			copy(out, p.Controls)
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: %s %q on %s", ErrUnsupported, kind, name, model)
}

func names(patterns []Pattern) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.Name
	}
	return out
}

// Lookup returns the capability record for a model string such as
// "AC2729" or "AC2729/10". Unknown models get the generic record with
// Name set to the requested model.
func Lookup(model string) Model {
	key := normalise(model)
	if m, ok := table[key]; ok {
		return m
	}
	g := generic
	if key != "" {
		g.Name = key
	}
	return g
}

// Known reports whether a model has a dedicated table entry.
func Known(model string) bool {
	_, ok := table[normalise(model)]
	return ok
}

// Models lists the model names with dedicated entries, sorted.
func Models() []string {
	out := make([]string, 0, len(table))
	for name := range table {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// normalise strips the regional suffix ("AC2729/10" -> "AC2729") and
// upper-cases the result.
func normalise(model string) string {
	model = strings.ToUpper(strings.TrimSpace(model))
	if i := strings.IndexByte(model, '/'); i >= 0 {
		model = model[:i]
	}
	return model
}
