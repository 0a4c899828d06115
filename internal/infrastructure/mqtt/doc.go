// Package mqtt provides the broker connection for the Broadlink bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained-flag control
//   - Subscriptions that survive reconnects
//   - Last Will and Testament on the bridge health topic
//
// # Topics
//
//	graylogic/command/broadlink/{selector}   inbound commands
//	graylogic/ack/broadlink/{selector}       dispatch outcomes
//	graylogic/learn/broadlink/{selector}     learning progress and results
//	graylogic/state/broadlink/{device}       retained liveness state
//	graylogic/discovery/broadlink            newly registered devices
//	graylogic/health/broadlink               retained bridge health / LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1, handler)
package mqtt
