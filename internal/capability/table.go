package capability

import "github.com/nerrad567/gray-logic-purifier/internal/coordinator"

var (
	filterPre         = Filter{Name: "pre_filter", StatusKey: "fltsts0", TotalKey: "flttotal0"}
	filterHEPA        = Filter{Name: "hepa_filter", StatusKey: "fltsts1", TotalKey: "flttotal1"}
	filterCarbon      = Filter{Name: "active_carbon_filter", StatusKey: "fltsts2", TotalKey: "flttotal2"}
	filterNanoProtect = Filter{Name: "nanoprotect_filter", StatusKey: "D05-14", TotalKey: "D05-08"}

	classicFilters = []Filter{filterPre, filterHEPA, filterCarbon}
	allFilters     = []Filter{filterPre, filterHEPA, filterCarbon, filterNanoProtect}
)

// c builds an ordered control list from alternating key/value pairs.
func c(kv ...any) []coordinator.Control {
	out := make([]coordinator.Control, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, coordinator.Control{Key: kv[i].(string), Value: kv[i+1]})
	}
	return out
}

func p(name string, controls []coordinator.Control) Pattern {
	return Pattern{Name: name, Controls: controls}
}

var ac2729Speeds = []Pattern{
	p(PresetNight, c(KeyPower, "1", KeyMode, "S", KeySpeed, "s")),
	p(PresetSpeed1, c(KeyPower, "1", KeyMode, "M", KeySpeed, "1")),
	p(PresetSpeed2, c(KeyPower, "1", KeyMode, "M", KeySpeed, "2")),
	p(PresetSpeed3, c(KeyPower, "1", KeyMode, "M", KeySpeed, "3")),
	p(PresetTurbo, c(KeyPower, "1", KeyMode, "M", KeySpeed, "t")),
}

var ac2889Speeds = []Pattern{
	p(PresetSleep, c(KeyPower, "1", KeyMode, "M", KeySpeed, "s")),
	p(PresetSpeed1, c(KeyPower, "1", KeyMode, "M", KeySpeed, "1")),
	p(PresetSpeed2, c(KeyPower, "1", KeyMode, "M", KeySpeed, "2")),
	p(PresetSpeed3, c(KeyPower, "1", KeyMode, "M", KeySpeed, "3")),
	p(PresetTurbo, c(KeyPower, "1", KeyMode, "M", KeySpeed, "t")),
}

var ac29xxSpeeds = []Pattern{
	p(PresetSleep, c(KeyPower, "1", KeyMode, "S")),
	p(PresetGentle, c(KeyPower, "1", KeyMode, "GT")),
	p(PresetTurbo, c(KeyPower, "1", KeyMode, "T")),
}

var ac29xx = Model{
	PowerKey: KeyPower, PowerOn: "1", PowerOff: "0",
	Presets: append([]Pattern{
		p(PresetAuto, c(KeyPower, "1", KeyMode, "AG")),
	}, ac29xxSpeeds...),
	Speeds:      ac29xxSpeeds,
	Switches:    []string{KeyChildLock},
	Selects:     []string{KeyPreferredIndex},
	Lights:      []string{KeyDisplayLight},
	Filters:     classicFilters,
	DisplayKey:  KeyDisplayLight,
	TimerKey:    KeyTimer,
	ChildLockOK: true,
}

var ac1214Speeds = []Pattern{
	p(PresetNight, c(KeyMode, "N")),
	p(PresetSpeed1, c(KeyMode, "M", KeySpeed, "1")),
	p(PresetSpeed2, c(KeyMode, "M", KeySpeed, "2")),
	p(PresetSpeed3, c(KeyMode, "M", KeySpeed, "3")),
	p(PresetTurbo, c(KeyMode, "M", KeySpeed, "t")),
}

var ac1715Speeds = []Pattern{
	p(PresetSleep, c(KeyNewPower, "ON", KeyNewMode, "Sleep")),
	p(PresetSpeed1, c(KeyNewPower, "ON", KeyNewMode, "Gentle/Speed 1")),
	p(PresetSpeed2, c(KeyNewPower, "ON", KeyNewMode, "Speed 2")),
	p(PresetTurbo, c(KeyNewPower, "ON", KeyNewMode, "Turbo")),
}

var table = map[string]Model{
	"AC2729": {
		Name:     "AC2729",
		PowerKey: KeyPower, PowerOn: "1", PowerOff: "0",
		Presets: append([]Pattern{
			p(PresetAuto, c(KeyPower, "1", KeyMode, "P")),
			p(PresetAllergen, c(KeyPower, "1", KeyMode, "A")),
		}, ac2729Speeds...),
		Speeds:      ac2729Speeds,
		Switches:    []string{KeyChildLock},
		Selects:     []string{KeyPreferredIndex, KeyHumidityTarget},
		Lights:      []string{KeyDisplayLight, KeyLightBrightness},
		Filters:     classicFilters,
		Humidifier:  true,
		DisplayKey:  KeyDisplayLight,
		TimerKey:    KeyTimer,
		ChildLockOK: true,
	},
	"AC2889": {
		Name:     "AC2889",
		PowerKey: KeyPower, PowerOn: "1", PowerOff: "0",
		Presets: append([]Pattern{
			p(PresetAuto, c(KeyPower, "1", KeyMode, "P")),
			p(PresetAllergen, c(KeyPower, "1", KeyMode, "A")),
			p(PresetBacteria, c(KeyPower, "1", KeyMode, "B")),
		}, ac2889Speeds...),
		Speeds:     ac2889Speeds,
		Selects:    []string{KeyPreferredIndex},
		Lights:     []string{KeyDisplayLight, KeyLightBrightness},
		Filters:    classicFilters,
		DisplayKey: KeyDisplayLight,
		TimerKey:   KeyTimer,
	},
	"AC2936": named(ac29xx, "AC2936"),
	"AC2939": named(ac29xx, "AC2939"),
	"AC2958": named(ac29xx, "AC2958"),
	"AC2959": named(ac29xx, "AC2959"),
	"AC1214": {
		Name:     "AC1214",
		PowerKey: KeyPower, PowerOn: "1", PowerOff: "0",
		// No power write in the pattern: the AC1214 rejects pwr together with mode.
		Presets: append([]Pattern{
			p(PresetAuto, c(KeyMode, "P")),
			p(PresetAllergen, c(KeyMode, "A")),
		}, ac1214Speeds...),
		Speeds:      ac1214Speeds,
		Switches:    []string{KeyChildLock},
		Selects:     []string{KeyPreferredIndex},
		Lights:      []string{KeyDisplayLight},
		Filters:     classicFilters,
		DisplayKey:  KeyDisplayLight,
		TimerKey:    KeyTimer,
		ChildLockOK: true,
	},
	"AC1715": {
		Name:     "AC1715",
		PowerKey: KeyNewPower, PowerOn: "ON", PowerOff: "OFF",
		Presets: append([]Pattern{
			p(PresetAuto, c(KeyNewPower, "ON", KeyNewMode, "Auto General")),
		}, ac1715Speeds...),
		Speeds:     ac1715Speeds,
		Lights:     []string{KeyNewDisplayLight},
		Filters:    allFilters,
		DisplayKey: KeyNewDisplayLight,
	},
}

// generic covers models without a dedicated entry using the classic keys.
var generic = Model{
	Name:     "generic",
	PowerKey: KeyPower, PowerOn: "1", PowerOff: "0",
	Presets: append([]Pattern{
		p(PresetAuto, c(KeyPower, "1", KeyMode, "P")),
	}, ac2729Speeds...),
	Speeds:      ac2729Speeds,
	Switches:    []string{KeyChildLock},
	Lights:      []string{KeyDisplayLight},
	Filters:     allFilters,
	DisplayKey:  KeyDisplayLight,
	TimerKey:    KeyTimer,
	ChildLockOK: true,
}

func named(m Model, name string) Model {
	m.Name = name
	return m
}
