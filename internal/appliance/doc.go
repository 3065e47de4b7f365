// Package appliance contains the bridging core between the HTTP API and
// the appliance board's MQTT channels.
//
// The Relay validates incoming control requests (shared secret, pin
// names), republishes them as command messages on the control topic, and
// tracks the board's last reported state from the state topic in a
// synchronized Snapshot.
//
// # Command path
//
// SubmitCommand (and the Toggle/SetAll conveniences that delegate to it)
// is fire-and-forget: it waits only for the broker's local publish
// acknowledgment, never for the board. The response lists which pins
// were commanded, not confirmation that the board applied them.
//
// # State path
//
// The board publishes complete state documents on the state topic,
// including unsolicited ones. The MQTT receive callback enqueues raw
// payloads on a bounded queue; a single consumer goroutine parses and
// applies them sequentially, so snapshot updates never interleave.
// Malformed documents are logged and dropped without disturbing the
// previous snapshot or the receive path.
//
// # Security
//
// The shared secret is compared with plain string equality and embedded
// in the command payload for the board firmware to re-check. Both are
// part of the board's wire contract and are known weaknesses, not design
// strengths: changing them requires a coordinated firmware update.
package appliance
