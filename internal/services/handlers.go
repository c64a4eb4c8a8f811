package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-purifier/internal/capability"
	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
)

// Service names.
const (
	ServiceSetPower             = "set_power"
	ServiceSetPresetMode        = "set_preset_mode"
	ServiceSetFanSpeed          = "set_fan_speed"
	ServiceSetChildLock         = "set_child_lock"
	ServiceSetDisplayBrightness = "set_display_brightness"
	ServiceSetTimer             = "set_timer"
	ServiceFilterReset          = "filter_reset"
	ServiceCalibrateSensors     = "calibrate_sensors"
	ServiceScheduleMaintenance  = "schedule_maintenance"
	ServiceResetDevice          = "reset_device"
)

// FilterAll selects every filter the model has.
const FilterAll = "all"

// plan is what a handler wants done once parameters are validated.
type plan struct {
	controls []coordinator.Control
	skipped  []string
	detail   map[string]any
}

type handler func(e *Executor, call Call) (*plan, error)

var handlers = map[string]handler{
	ServiceSetPower:             setPower,
	ServiceSetPresetMode:        setPresetMode,
	ServiceSetFanSpeed:          setFanSpeed,
	ServiceSetChildLock:         setChildLock,
	ServiceSetDisplayBrightness: setDisplayBrightness,
	ServiceSetTimer:             setTimer,
	ServiceFilterReset:          filterReset,
	ServiceCalibrateSensors:     calibrateSensors,
	ServiceScheduleMaintenance:  scheduleMaintenance,
	ServiceResetDevice:          resetDevice,
}

func setPower(_ *Executor, call Call) (*plan, error) {
	on, err := call.Params.RequireBool("on")
	if err != nil {
		return nil, err
	}
	if call.Model.PowerKey == "" {
		return nil, fmt.Errorf("%w: %s has no power control", capability.ErrUnsupported, call.Model.Name)
	}
	return &plan{controls: []coordinator.Control{call.Model.Power(on)}}, nil
}

func setPresetMode(_ *Executor, call Call) (*plan, error) {
	name, err := call.Params.String("preset", "")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: preset is required", ErrInvalidParams)
	}
	controls, err := call.Model.Preset(name)
	if err != nil {
		return nil, err
	}
	return &plan{controls: controls}, nil
}

func setFanSpeed(_ *Executor, call Call) (*plan, error) {
	name, err := call.Params.String("speed", "")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: speed is required", ErrInvalidParams)
	}
	controls, err := call.Model.Speed(name)
	if err != nil {
		return nil, err
	}
	return &plan{controls: controls}, nil
}

func setChildLock(_ *Executor, call Call) (*plan, error) {
	enabled, err := call.Params.RequireBool("enabled")
	if err != nil {
		return nil, err
	}
	if !call.Model.ChildLockOK {
		return nil, fmt.Errorf("%w: %s has no child lock", capability.ErrUnsupported, call.Model.Name)
	}
	return &plan{controls: []coordinator.Control{{Key: capability.KeyChildLock, Value: enabled}}}, nil
}

// setDisplayBrightness scales a 0-100 percentage onto the device's 0-255
// light level, which the device expects as a decimal string.
func setDisplayBrightness(e *Executor, call Call) (*plan, error) {
	level, err := call.Params.RequireInt("brightness_level", 0, 100)
	if err != nil {
		return nil, err
	}
	autoDim, err := call.Params.Bool("auto_dim", false)
	if err != nil {
		return nil, err
	}
	nightMode, err := call.Params.Bool("night_mode", false)
	if err != nil {
		return nil, err
	}
	if call.Model.DisplayKey == "" {
		return nil, fmt.Errorf("%w: %s has no display light", capability.ErrUnsupported, call.Model.Name)
	}
	if autoDim || nightMode {
		e.logger.Info("display options noted", "entry_id", call.EntryID, "auto_dim", autoDim, "night_mode", nightMode)
	}
	raw := strconv.Itoa(level * 255 / 100)
	return &plan{
		controls: []coordinator.Control{{Key: call.Model.DisplayKey, Value: raw}},
		detail:   map[string]any{"auto_dim": autoDim, "night_mode": nightMode},
	}, nil
}

// setTimer writes the shutoff timer in minutes.
func setTimer(_ *Executor, call Call) (*plan, error) {
	hours, ok, err := call.Params.Float("duration_hours", 0, 24)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: duration_hours is required", ErrInvalidParams)
	}
	action, err := call.Params.OneOf("action_after_timer", "turn_off", "turn_off", "sleep_mode", "auto_mode")
	if err != nil {
		return nil, err
	}
	if call.Model.TimerKey == "" {
		return nil, fmt.Errorf("%w: %s has no timer", capability.ErrUnsupported, call.Model.Name)
	}
	minutes := int64(hours * 60)
	return &plan{
		controls: []coordinator.Control{{Key: call.Model.TimerKey, Value: minutes}},
		detail:   map[string]any{"minutes": minutes, "action_after_timer": action},
	}, nil
}

// filterReset restores each selected filter's remaining life to its total.
// Filters whose total is not reported yet are skipped.
func filterReset(e *Executor, call Call) (*plan, error) {
	kind, err := call.Params.String("filter_type", FilterAll)
	if err != nil {
		return nil, err
	}
	resetSchedule, err := call.Params.Bool("reset_maintenance_schedule", false)
	if err != nil {
		return nil, err
	}

	var filters []capability.Filter
	if kind == FilterAll {
		filters = call.Model.Filters
	} else {
		f, ok := call.Model.FilterByName(kind)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no %s", capability.ErrUnsupported, call.Model.Name, kind)
		}
		filters = []capability.Filter{f}
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: %s reports no filters", capability.ErrUnsupported, call.Model.Name)
	}

	var status coordinator.Status
	if call.Target != nil {
		status = call.Target.CurrentStatus()
	}

	p := &plan{detail: map[string]any{"reset_maintenance_schedule": resetSchedule}}
	for _, f := range filters {
		total, ok := capability.Int64(status[f.TotalKey])
		if !ok || total <= 0 {
			e.logger.Warn("filter total unknown, skipping reset", "entry_id", call.EntryID, "filter", f.Name)
			p.skipped = append(p.skipped, f.Name)
			continue
		}
		p.controls = append(p.controls, coordinator.Control{Key: f.StatusKey, Value: total})
	}
	return p, nil
}

// calibrateSensors validates the request and logs it; the devices expose
// no calibration command.
func calibrateSensors(e *Executor, call Call) (*plan, error) {
	sensor, err := call.Params.OneOf("sensor_type", "all", "all", "pm25", "allergen_index", "gas", "tvoc")
	if err != nil {
		return nil, err
	}
	mode, err := call.Params.OneOf("calibration_mode", "auto", "auto", "manual", "factory_reset")
	if err != nil {
		return nil, err
	}
	detail := map[string]any{"sensor_type": sensor, "calibration_mode": mode}
	if mode == "manual" {
		ref, ok, err := call.Params.Float("reference_value", 0, 500)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: reference_value is required for manual calibration", ErrInvalidParams)
		}
		detail["reference_value"] = ref
	}
	e.logger.Info("sensor calibration requested", "entry_id", call.EntryID, "sensor_type", sensor, "mode", mode)
	return &plan{detail: detail}, nil
}

// scheduleMaintenance computes the next reminder and returns it.
func scheduleMaintenance(e *Executor, call Call) (*plan, error) {
	kind, err := call.Params.OneOf("maintenance_type", "",
		"filter_replacement", "sensor_calibration", "deep_cleaning", "general_maintenance")
	if err != nil {
		return nil, err
	}
	interval, err := call.Params.RequireInt("reminder_interval", 1, 365)
	if err != nil {
		return nil, err
	}
	notify, err := call.Params.Bool("enable_notifications", true)
	if err != nil {
		return nil, err
	}
	advance, err := call.Params.Int("notification_advance_days", 7, 1, 30)
	if err != nil {
		return nil, err
	}
	notes, err := call.Params.String("notes", "")
	if err != nil {
		return nil, err
	}

	now := e.opts.Now().UTC()
	next := now.AddDate(0, 0, interval)
	if raw, err := call.Params.String("next_reminder_date", ""); err != nil {
		return nil, err
	} else if raw != "" {
		next, err = time.Parse(time.DateOnly, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: next_reminder_date must be YYYY-MM-DD", ErrInvalidParams)
		}
	}

	detail := map[string]any{
		"maintenance_type":     kind,
		"reminder_interval":    interval,
		"next_reminder":        next.Format(time.DateOnly),
		"enable_notifications": notify,
	}
	if notify {
		detail["notify_on"] = next.AddDate(0, 0, -advance).Format(time.DateOnly)
	}
	if notes != "" {
		detail["notes"] = notes
	}
	e.logger.Info("maintenance scheduled", "entry_id", call.EntryID, "type", kind, "next", detail["next_reminder"])
	return &plan{detail: detail}, nil
}

// resetDevice requires explicit confirmation and only logs the request.
func resetDevice(e *Executor, call Call) (*plan, error) {
	kind, err := call.Params.OneOf("reset_type", "soft_reset", "soft_reset", "factory_reset", "network_reset")
	if err != nil {
		return nil, err
	}
	confirmed, err := call.Params.Bool("confirm_reset", false)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		return nil, fmt.Errorf("%w: set confirm_reset to perform a %s", ErrConfirmationRequired, kind)
	}
	e.logger.Warn("device reset requested", "entry_id", call.EntryID, "reset_type", kind)
	return &plan{detail: map[string]any{"reset_type": kind}}, nil
}
