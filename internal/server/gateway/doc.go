// Package gateway accepts client websocket connections and turns their
// frames into membership events.
//
// Each accepted socket becomes a session with a fresh connection id. The
// client joins rooms with
//
//	{"type":"join-room","payload":"lobby"}
//
// and receives one frame per message published to a joined room:
//
//	{"type":"room-update","room":"lobby","payload":...}
//
// When the socket closes the session leaves the local fan-out sink first and
// the fleet-wide membership second, so no message is delivered to a session
// whose counters were already released.
package gateway
