package mqttlink

import "errors"

var (
	// ErrNotOpen is returned when the link is used before Open or after Close.
	ErrNotOpen = errors.New("mqttlink: link not open")

	// ErrBrokerDown is returned when the MQTT client has no broker connection.
	ErrBrokerDown = errors.New("mqttlink: broker not connected")

	// ErrOffline is returned by ReceiveNext when the gateway reports the device offline.
	ErrOffline = errors.New("mqttlink: device offline")

	// ErrRejected is returned when the gateway acknowledges a write with a failure.
	ErrRejected = errors.New("mqttlink: write rejected")

	// ErrPayload is returned for status messages that cannot be decoded.
	ErrPayload = errors.New("mqttlink: invalid payload")
)
