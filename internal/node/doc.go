// Package node is the device aggregate: it owns the network association
// controller, the broker session and the update gate, and drives them from
// one control goroutine.
//
// # Poll dispatcher
//
// Step services, in fixed order, the association controller, the broker
// session and the update gate. Run calls Step on every tick of the poll
// interval until its context is cancelled or a reset is requested.
//
// # Admin entry points
//
// Status, ForceDisconnect, ForceReconnect and Reset mutate or read state
// owned by the control goroutine. Callers on other goroutines (HTTP
// handlers) go through Admin, which marshals each call onto Run with Do so
// that it executes between two dispatcher steps.
//
// # Reset
//
// Reset never exits the process itself. Run keeps stepping for a short
// grace period, so the caller's response can be delivered, and then
// returns ErrResetRequested. The command maps that to a dedicated exit
// status that the supervisor treats as a restart request.
package node
