// Package coordinator keeps one authoritative view of a purifier's status.
//
// A Coordinator owns the single session to the device (a DeviceLink), merges
// every pushed status delta into a StatusCache, fans out change notifications
// to subscribers, and recovers from dropped or silent sessions. Control writes
// go through the same Coordinator and are serialised onto the same link.
//
// # Lifecycle
//
//	INIT ──► CONNECTING ──► OBSERVING ◄──► RECONNECTING
//	  │           │             │               │
//	  └───────────┴─────────────┴───────────────┴──► SHUTDOWN
//
// FirstRefresh performs the CONNECTING step synchronously and returns ErrConnect
// if the device cannot be reached within the connect timeout. After that the
// observation goroutine owns the link. A failed receive moves the Coordinator
// to RECONNECTING, where the ReconnectSupervisor retries with exponential
// backoff until it succeeds or Shutdown is called.
//
// # Availability
//
// Staleness is not an error. When no delta arrives within the staleness window
// the Coordinator flips IsAvailable to false and notifies subscribers once. The
// cached status is kept so consumers can still show the last good readings.
//
// # Usage
//
//	coord := coordinator.New(link, storedSnapshot, coordinator.Options{
//	    Name:   "living-room",
//	    Logger: logger,
//	})
//	if err := coord.FirstRefresh(ctx); err != nil {
//	    return err // device not ready
//	}
//	defer coord.Shutdown()
//
//	reg := coord.Subscribe(func() {
//	    status := coord.CurrentStatus()
//	    fmt.Println(status["pwr"])
//	})
//	defer reg.Release()
//
//	err := coord.SetControlValue(ctx, "cl", true)
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Subscribers may call
// Subscribe, Unsubscribe and CurrentStatus from inside a notification.
// Shutdown waits for callbacks that are running, so a callback that needs to
// stop its Coordinator calls ShutdownAsync instead.
package coordinator
