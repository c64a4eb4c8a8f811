//go:build integration

package mqtt

import (
	"sync"
	"testing"
	"time"
)

// Integration tests need a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_ConnectAndClose(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "purifier-int-connect"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}

func TestIntegration_PublishSubscribeRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "purifier-int-roundtrip"
	cfg.TopicPrefix = "purifier-int"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := client.Topics()
	var mu sync.Mutex
	var got []string
	done := make(chan struct{}, 1)

	err = client.Subscribe(topics.AllPurifierStatus(), 1, func(topic string, payload []byte) error {
		mu.Lock()
		got = append(got, topic+"="+string(payload))
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if n := client.SubscriptionCount(); n != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", n)
	}

	if err := client.Publish(topics.PurifierStatus("10.0.0.1"), []byte(`{"pwr":"1"}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	mu.Lock()
	defer mu.Unlock()
	want := "purifier-int/purifier/10.0.0.1/status={\"pwr\":\"1\"}"
	if len(got) != 1 || got[0] != want {
		t.Errorf("received %v, want [%s]", got, want)
	}
}
