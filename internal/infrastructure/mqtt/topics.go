package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "graylogic"

// Topics provides builders for the service's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Purifier traffic goes through a gateway that bridges the device's local
// protocol onto MQTT. Per device (identified by host):
//
//	{prefix}/purifier/{host}/status        gateway -> core, JSON status delta
//	{prefix}/purifier/{host}/availability  gateway -> core, "online"/"offline" (retained)
//	{prefix}/purifier/{host}/command       core -> gateway, JSON control write
//	{prefix}/purifier/{host}/ack           gateway -> core, write acknowledgement
//
// Core publishes its own health and presence under {prefix}/core and
// {prefix}/system.
type Topics struct {
	Prefix string
}

// NewTopics returns a topic builder rooted at prefix.
// Trailing slashes are trimmed; an empty prefix uses DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// =============================================================================
// Purifier Topics
// =============================================================================

// PurifierStatus returns the topic carrying status deltas from a device.
//
// Example: graylogic/purifier/192.168.1.20/status
func (t Topics) PurifierStatus(host string) string {
	return fmt.Sprintf("%s/purifier/%s/status", t.root(), sanitise(host))
}

// PurifierAvailability returns the gateway's retained availability topic for a device.
//
// Example: graylogic/purifier/192.168.1.20/availability
func (t Topics) PurifierAvailability(host string) string {
	return fmt.Sprintf("%s/purifier/%s/availability", t.root(), sanitise(host))
}

// PurifierCommand returns the topic for control writes to a device.
//
// Example: graylogic/purifier/192.168.1.20/command
func (t Topics) PurifierCommand(host string) string {
	return fmt.Sprintf("%s/purifier/%s/command", t.root(), sanitise(host))
}

// PurifierAck returns the topic on which the gateway acknowledges writes.
//
// Example: graylogic/purifier/192.168.1.20/ack
func (t Topics) PurifierAck(host string) string {
	return fmt.Sprintf("%s/purifier/%s/ack", t.root(), sanitise(host))
}

// =============================================================================
// Core Topics
// =============================================================================

// CoreHealth returns the retained health topic for an entry.
//
// Example: graylogic/core/health/6f1c...
func (t Topics) CoreHealth(entryID string) string {
	return fmt.Sprintf("%s/core/health/%s", t.root(), entryID)
}

// CoreIssues returns the retained open-issues topic for an entry.
//
// Example: graylogic/core/issues/6f1c...
func (t Topics) CoreIssues(entryID string) string {
	return fmt.Sprintf("%s/core/issues/%s", t.root(), entryID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic (LWT target).
//
// Example: graylogic/system/status
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.root())
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllPurifierStatus returns a pattern matching status deltas from every device.
//
// Pattern: graylogic/purifier/+/status
func (t Topics) AllPurifierStatus() string {
	return fmt.Sprintf("%s/purifier/+/status", t.root())
}

// AllCoreHealth returns a pattern matching every entry's health topic.
//
// Pattern: graylogic/core/health/+
func (t Topics) AllCoreHealth() string {
	return fmt.Sprintf("%s/core/health/+", t.root())
}

// sanitise makes a host usable as a single topic level.
// MQTT wildcards and separators are replaced; ports keep their colon.
func sanitise(level string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(level)
}
