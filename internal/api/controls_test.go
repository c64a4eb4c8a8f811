package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-purifier/internal/audit"
	"github.com/nerrad567/gray-logic-purifier/internal/auth"
	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
)

func TestSetControl(t *testing.T) {
	env := newTestEnv(t)
	id := env.createEntry(t, "Bedroom", "192.168.1.40")
	op := tokenFor(t, auth.RoleOperator)

	w := env.do(t, http.MethodPut, "/api/v1/devices/"+id+"/controls/om", `{"value":"2"}`, op)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	status := resp["status"].(map[string]any)
	if status["om"] != "2" {
		t.Errorf("om in response = %v, want optimistic 2", status["om"])
	}

	writes := env.links.device("192.168.1.40").Writes()
	if len(writes) != 1 || writes[0] != (coordinator.Control{Key: "om", Value: "2"}) {
		t.Errorf("device writes = %v, want [om=2]", writes)
	}

	// Integers reach the device as int64.
	w = env.do(t, http.MethodPut, "/api/v1/devices/"+id+"/controls/aqil", `{"value":50}`, op)
	if w.Code != http.StatusOK {
		t.Fatalf("aqil status = %d; body: %s", w.Code, w.Body.String())
	}
	writes = env.links.device("192.168.1.40").Writes()
	if got := writes[len(writes)-1].Value; got != int64(50) {
		t.Errorf("aqil value = %v (%T), want int64 50", got, got)
	}

	log, err := env.log.List(context.Background(), audit.Filter{EntryID: id})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if log.Total != 2 {
		t.Errorf("service log total = %d, want 2", log.Total)
	}
}

func TestSetControl_Errors(t *testing.T) {
	env := newTestEnv(t)
	id := env.createEntry(t, "Bedroom", "192.168.1.40")
	op := tokenFor(t, auth.RoleOperator)

	env.links.device("192.168.1.41").SetOpenError(errors.New("connection refused"))
	resp := decode(t, env.do(t, http.MethodPost, "/api/v1/devices", `{"name":"Office","host":"192.168.1.41"}`, tokenFor(t, auth.RoleAdmin)))
	unloaded := resp["id"].(string)

	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{"missing value", "/api/v1/devices/" + id + "/controls/om", `{}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"null value", "/api/v1/devices/" + id + "/controls/om", `{"value":null}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"invalid json", "/api/v1/devices/" + id + "/controls/om", `{`, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown entry", "/api/v1/devices/missing/controls/om", `{"value":"2"}`, http.StatusNotFound, ErrCodeNotFound},
		{"entry not loaded", "/api/v1/devices/" + unloaded + "/controls/om", `{"value":"2"}`, http.StatusConflict, ErrCodeNotLoaded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPut, tt.path, tt.body, op)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.wantErr {
				t.Errorf("code = %q, want %q", code, tt.wantErr)
			}
		})
	}
}

func TestSetControl_DeviceErrorOpensBreaker(t *testing.T) {
	env := newTestEnv(t)
	id := env.createEntry(t, "Bedroom", "192.168.1.40")
	op := tokenFor(t, auth.RoleOperator)
	env.links.device("192.168.1.40").SetWriteError(errors.New("device rejected write"))

	path := "/api/v1/devices/" + id + "/controls/pwr"
	for i := range 2 {
		w := env.do(t, http.MethodPut, path, `{"value":"0"}`, op)
		if w.Code != http.StatusBadGateway {
			t.Fatalf("write %d status = %d, want 502; body: %s", i, w.Code, w.Body.String())
		}
		if code := errorCode(t, w); code != ErrCodeDeviceError {
			t.Errorf("write %d code = %q, want %q", i, code, ErrCodeDeviceError)
		}
	}

	w := env.do(t, http.MethodPut, path, `{"value":"0"}`, op)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status after failures = %d, want 503; body: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code != ErrCodeCircuitOpen {
		t.Errorf("code = %q, want %q", code, ErrCodeCircuitOpen)
	}

	diag := decode(t, env.do(t, http.MethodGet, "/api/v1/devices/"+id+"/diagnostics", "", ""))
	if got := diag["coordinator"].(map[string]any)["breaker_state"]; got != "open" {
		t.Errorf("breaker_state = %v, want open", got)
	}

	failed := decode(t, env.do(t, http.MethodGet, "/api/v1/devices/"+id+"/services/log?outcome=failed", "", ""))
	if failed["total"] != float64(2) {
		t.Errorf("failed records = %v, want 2", failed["total"])
	}
	rejected := decode(t, env.do(t, http.MethodGet, "/api/v1/devices/"+id+"/services/log?outcome=rejected", "", ""))
	if rejected["total"] != float64(1) {
		t.Errorf("rejected records = %v, want 1", rejected["total"])
	}
}

func TestCallService(t *testing.T) {
	env := newTestEnv(t)
	id := env.createEntry(t, "Bedroom", "192.168.1.40")
	op := tokenFor(t, auth.RoleOperator)
	dev := env.links.device("192.168.1.40")

	tests := []struct {
		name    string
		service string
		body    string
		want    coordinator.Control
	}{
		{"child lock", "set_child_lock", `{"enabled":true}`, coordinator.Control{Key: "cl", Value: true}},
		{"timer hours to minutes", "set_timer", `{"duration_hours":2}`, coordinator.Control{Key: "dt", Value: int64(120)}},
		{"power off", "set_power", `{"on":false}`, coordinator.Control{Key: "pwr", Value: "0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/devices/"+id+"/services/"+tt.service, tt.body, op)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
			}
			if got := decode(t, w)["service"]; got != tt.service {
				t.Errorf("service = %v, want %s", got, tt.service)
			}
			writes := dev.Writes()
			if len(writes) == 0 || writes[len(writes)-1] != tt.want {
				t.Errorf("last write = %v, want %v", writes, tt.want)
			}
		})
	}
}

func TestCallService_FilterReset(t *testing.T) {
	env := newTestEnv(t)
	id := env.createEntry(t, "Bedroom", "192.168.1.40")

	w := env.do(t, http.MethodPost, "/api/v1/devices/"+id+"/services/filter_reset",
		`{"filter_type":"hepa_filter"}`, tokenFor(t, auth.RoleOperator))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	status := decode(t, env.do(t, http.MethodGet, "/api/v1/devices/"+id+"/status", "", ""))["status"].(map[string]any)
	if status["fltsts1"] != float64(4800) {
		t.Errorf("fltsts1 = %v, want 4800", status["fltsts1"])
	}
}

func TestCallService_Errors(t *testing.T) {
	env := newTestEnv(t)
	id := env.createEntry(t, "Bedroom", "192.168.1.40")
	op := tokenFor(t, auth.RoleOperator)

	tests := []struct {
		name     string
		service  string
		body     string
		wantCode int
		wantErr  string
	}{
		{"unknown service", "make_coffee", ``, http.StatusNotFound, ErrCodeNotFound},
		{"missing required param", "set_child_lock", `{}`, http.StatusBadRequest, ErrCodeValidation},
		{"out of range", "set_display_brightness", `{"brightness_level":150}`, http.StatusBadRequest, ErrCodeValidation},
		{"unsupported preset", "set_preset_mode", `{"preset":"turbo-max"}`, http.StatusUnprocessableEntity, ErrCodeUnsupported},
		{"reset needs confirmation", "reset_device", `{"reset_type":"soft_reset"}`, http.StatusBadRequest, ErrCodeValidation},
		{"invalid json", "set_power", `{`, http.StatusBadRequest, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/devices/"+id+"/services/"+tt.service, tt.body, op)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.wantErr {
				t.Errorf("code = %q, want %q", code, tt.wantErr)
			}
		})
	}

	if writes := env.links.device("192.168.1.40").Writes(); len(writes) != 0 {
		t.Errorf("rejected calls wrote %v", writes)
	}
}

func TestServiceLog_Pagination(t *testing.T) {
	env := newTestEnv(t)
	id := env.createEntry(t, "Bedroom", "192.168.1.40")
	op := tokenFor(t, auth.RoleOperator)

	for range 3 {
		env.do(t, http.MethodPost, "/api/v1/devices/"+id+"/services/set_power", `{"on":true}`, op)
	}
	env.do(t, http.MethodPost, "/api/v1/devices/"+id+"/services/set_child_lock", `{"enabled":false}`, op)

	resp := decode(t, env.do(t, http.MethodGet, "/api/v1/devices/"+id+"/services/log?service=set_power&limit=2", "", ""))
	if resp["total"] != float64(3) {
		t.Errorf("total = %v, want 3", resp["total"])
	}
	if n := len(resp["records"].([]any)); n != 2 {
		t.Errorf("records = %d, want 2", n)
	}

	w := env.do(t, http.MethodGet, "/api/v1/devices/"+id+"/services/log?limit=abc", "", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
}

func TestNormaliseNumbers(t *testing.T) {
	var v map[string]any
	if err := decodeBody(strings.NewReader(`{"a":1,"b":1.5,"c":[2,"x"],"d":{"e":3}}`), &v); err != nil {
		t.Fatalf("decodeBody: %v", err)
	}
	got := normaliseNumbers(v).(map[string]any)

	if got["a"] != int64(1) {
		t.Errorf("a = %v (%T), want int64 1", got["a"], got["a"])
	}
	if got["b"] != 1.5 {
		t.Errorf("b = %v (%T), want 1.5", got["b"], got["b"])
	}
	if c := got["c"].([]any); c[0] != int64(2) || c[1] != "x" {
		t.Errorf("c = %v", c)
	}
	if d := got["d"].(map[string]any); d["e"] != int64(3) {
		t.Errorf("d.e = %v (%T)", d["e"], d["e"])
	}
}
