package memlink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-purifier/internal/coordinator"
)

func TestDevice_OpenQueuesFullStatus(t *testing.T) {
	d := New(coordinator.Status{"pwr": "1", "pm25": int64(3)})
	ctx := context.Background()

	if err := d.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, err := d.ReceiveNext(ctx)
	if err != nil {
		t.Fatalf("ReceiveNext() error = %v", err)
	}
	if len(got) != 2 || got["pm25"] != int64(3) {
		t.Errorf("first delta = %v, want full status", got)
	}
	if d.Sessions() != 1 {
		t.Errorf("Sessions() = %d, want 1", d.Sessions())
	}
}

func TestDevice_WriteEchoes(t *testing.T) {
	d := New(nil)
	ctx := context.Background()
	if err := d.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_, _ = d.ReceiveNext(ctx)

	if err := d.WriteControl(ctx, "cl", true); err != nil {
		t.Fatalf("WriteControl() error = %v", err)
	}
	got, err := d.ReceiveNext(ctx)
	if err != nil {
		t.Fatalf("ReceiveNext() error = %v", err)
	}
	if len(got) != 1 || got["cl"] != true {
		t.Errorf("echo = %v, want {cl:true}", got)
	}
	if w := d.Writes(); len(w) != 1 || w[0].Key != "cl" {
		t.Errorf("Writes() = %v", w)
	}
	if d.Status()["cl"] != true {
		t.Error("device-side status not updated")
	}
}

func TestDevice_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	t.Run("closed device", func(t *testing.T) {
		d := New(nil)
		if _, err := d.ReceiveNext(ctx); !errors.Is(err, ErrNotOpen) {
			t.Errorf("ReceiveNext() error = %v, want ErrNotOpen", err)
		}
		if err := d.WriteControl(ctx, "pwr", "0"); !errors.Is(err, ErrNotOpen) {
			t.Errorf("WriteControl() error = %v, want ErrNotOpen", err)
		}
	})

	t.Run("open error", func(t *testing.T) {
		d := New(nil)
		d.SetOpenError(boom)
		if err := d.Open(ctx); !errors.Is(err, boom) {
			t.Errorf("Open() error = %v, want boom", err)
		}
		d.SetOpenError(nil)
		if err := d.Open(ctx); err != nil {
			t.Errorf("Open() after clearing error = %v", err)
		}
	})

	t.Run("write error", func(t *testing.T) {
		d := New(nil)
		_ = d.Open(ctx)
		d.SetWriteError(boom)
		if err := d.WriteControl(ctx, "pwr", "0"); !errors.Is(err, boom) {
			t.Errorf("WriteControl() error = %v, want boom", err)
		}
		if len(d.Writes()) != 0 {
			t.Error("failed write recorded")
		}
	})

	t.Run("drop", func(t *testing.T) {
		d := New(nil)
		_ = d.Open(ctx)
		_, _ = d.ReceiveNext(ctx)
		d.Drop()
		if _, err := d.ReceiveNext(ctx); !errors.Is(err, ErrDropped) {
			t.Errorf("ReceiveNext() error = %v, want ErrDropped", err)
		}
	})

	t.Run("close unblocks receiver", func(t *testing.T) {
		d := New(nil)
		_ = d.Open(ctx)
		_, _ = d.ReceiveNext(ctx)
		errCh := make(chan error, 1)
		go func() {
			_, err := d.ReceiveNext(ctx)
			errCh <- err
		}()
		time.Sleep(10 * time.Millisecond)
		_ = d.Close()
		select {
		case err := <-errCh:
			if !errors.Is(err, ErrNotOpen) {
				t.Errorf("ReceiveNext() error = %v, want ErrNotOpen", err)
			}
		case <-time.After(time.Second):
			t.Fatal("receiver not released by Close")
		}
	})
}

func TestDevice_Simulate(t *testing.T) {
	d := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_, _ = d.ReceiveNext(ctx)

	go d.Simulate(ctx, 5*time.Millisecond)

	rctx, rcancel := context.WithTimeout(ctx, time.Second)
	defer rcancel()
	delta, err := d.ReceiveNext(rctx)
	if err != nil {
		t.Fatalf("ReceiveNext() error = %v", err)
	}
	if _, ok := delta["pm25"]; !ok {
		t.Errorf("drift delta = %v, want pm25", delta)
	}
	if delta["fltsts0"] != int64(211) {
		t.Errorf("fltsts0 = %v, want 211", delta["fltsts0"])
	}
}
