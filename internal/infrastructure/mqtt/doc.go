// Package mqtt provides MQTT client connectivity for the appliance bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect after an initial success
//   - Message publishing with QoS guarantees
//   - Topic subscriptions restored across reconnects
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The bridge sits between HTTP clients and a microcontroller appliance
// board, with the broker decoupling the two:
//
//	HTTP clients ↔ Appliance Bridge ↔ MQTT Broker ↔ Appliance Board
//
// Commands flow out on the control topic; the board reports state on the
// state topic. Both topic names come from configuration. The bridge also
// maintains its own retained status document on StatusTopic.
//
// # Failure model
//
// The initial Connect is bounded by a timeout and does not retry in the
// background on failure; callers dial again on demand. After a successful
// connection, drops are handled by paho's auto-reconnect with exponential
// backoff, and tracked subscriptions are restored. Handler panics and
// errors are contained per message so one bad payload cannot stop the
// receive path.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(cfg.Appliance.StateTopic, 1,
//	    func(topic string, payload []byte) error {
//	        return apply(payload)
//	    })
//
//	err = client.Publish(cfg.Appliance.ControlTopic, body, 1, false)
package mqtt
