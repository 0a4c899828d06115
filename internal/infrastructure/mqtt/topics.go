package mqtt

import (
	"fmt"
	"strings"
)

// Protocol is the protocol segment used in every Broadlink bridge topic.
const Protocol = "broadlink"

// TopicPrefix is the root of the Gray Logic topic tree.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{target}.
const TopicPrefix = "graylogic"

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Ack("192.168.1.50")
//	// Returns: "graylogic/ack/broadlink/192.168.1.50"
type Topics struct{}

// Command returns the command topic for a device selector.
//
// Example: graylogic/command/broadlink/192.168.1.50
func (Topics) Command(selector string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, Protocol, selector)
}

// AllCommands returns the subscription pattern for every command.
//
// Pattern: graylogic/command/broadlink/#
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/#", TopicPrefix, Protocol)
}

// Ack returns the acknowledgement topic for a device selector.
//
// Example: graylogic/ack/broadlink/192.168.1.50
func (Topics) Ack(selector string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, Protocol, selector)
}

// Learn returns the topic carrying learning progress and results.
//
// Example: graylogic/learn/broadlink/192.168.1.50
func (Topics) Learn(selector string) string {
	return fmt.Sprintf("%s/learn/%s/%s", TopicPrefix, Protocol, selector)
}

// State returns the retained liveness state topic for a device.
//
// Example: graylogic/state/broadlink/34:ea:34:aa:bb:cc
func (Topics) State(deviceKey string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, Protocol, deviceKey)
}

// Discovery returns the topic announcing newly registered devices.
//
// Example: graylogic/discovery/broadlink
func (Topics) Discovery() string {
	return fmt.Sprintf("%s/discovery/%s", TopicPrefix, Protocol)
}

// BridgeStatus returns the retained bridge health topic. It also carries
// the connection LWT.
//
// Example: graylogic/health/broadlink
func (Topics) BridgeStatus() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// SelectorFromCommand extracts the device selector from a command topic.
// The selector is everything after graylogic/command/broadlink/, so IPv6
// literals and MACs with separators survive intact.
//
// Returns false if the topic is not a command topic or has no selector.
func (Topics) SelectorFromCommand(topic string) (string, bool) {
	prefix := fmt.Sprintf("%s/command/%s/", TopicPrefix, Protocol)
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	selector := strings.TrimPrefix(topic, prefix)
	if selector == "" {
		return "", false
	}
	return selector, true
}
