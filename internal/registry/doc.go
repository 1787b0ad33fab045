// Package registry multiplexes resolver instances behind one connection.
//
// A Registry owns every instance created over a single transport connection
// (or a single stdio worker), keyed by the host-assigned resolver id. It
// routes host commands to instances, turns invalid commands into rejected
// events, and funnels every instance's events into one ordered queue that
// the transport drains.
//
// There is no process-wide registry: each connection gets its own, and
// losing the connection closes it, disposing every instance it holds. The
// host then recreates what it still needs after the next ready event.
package registry
