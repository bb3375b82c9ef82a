// Package bridge is a network implementation of the transport boundary.
//
// The real battery stack of a wireless peripheral is reachable only from the
// machine it is paired with. The bridge moves that boundary onto the LAN: an
// agent process next to the device advertises itself over mDNS
// (_battwatch._tcp) and serves battery reads and subscriptions over a TCP
// connection carrying length-prefixed CBOR frames. The Client on the other
// end implements transport.Transport, so the engine cannot tell a bridged
// device from a local one.
//
// Monitored connections are kept open for pushed reports. When one drops, the
// Client emits a disconnected status event and reconnects with exponential
// backoff; a successful reconnect re-subscribes, emits a connected status
// event and replays the fresh reading as report events.
package bridge
