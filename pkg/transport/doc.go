// Package transport defines the boundary between the monitor engine and the
// wireless stack that actually talks to devices.
//
// The engine never opens radio connections itself. It consumes a Transport:
// discovery scans, single battery reads, subscription start/stop, and two
// asynchronous event streams (battery reports pushed by monitored devices,
// connection status changes observed by the stack). Everything above this
// boundary is transport-agnostic; implementations decide what a "device"
// physically is.
//
// Implementations in this repository:
//   - pkg/bridge: LAN bridge speaking to battwatch agents over mDNS + TCP
//   - pkg/transport/transporttest: scriptable fake for engine tests
//
// # Failure Contract
//
// ReadInfo and StartMonitor failures mean "device unreachable right now" and
// carry no further taxonomy; the engine folds them into device state. Stop
// calls are best-effort: implementations release local bookkeeping even when
// the remote end is gone. Discovery is the only call with an engine-imposed
// deadline (ScanTimeout); its errors are the only ones shown to users.
package transport
