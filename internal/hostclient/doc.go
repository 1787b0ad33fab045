// Package hostclient is the host side of the worker protocol.
//
// A Client keeps the host's copy of every resolver instance it created: the
// node inputs it sent and the outputs, states and dependent sets the worker
// streamed back. The worker keeps nothing across restarts, so whenever a
// worker announces itself with a ready event the client re-creates every
// retained instance from its inputs.
//
// Each command carries a command id. WaitReady uses the command id echoed by
// resolver-ready to know that every command sent so far has been applied and
// evaluated to a fixed point.
package hostclient
