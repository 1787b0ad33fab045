// Package protocol defines the messages exchanged between a host and a
// worker.
//
// Every message is a JSON object with a "type" field. The host sends
// commands (create-resolver, update-input, delete-input, dispose-resolver);
// the worker answers with events (ready, resolver-ready, outputs,
// dependent-set, rejected). Node values use the encoding of the value
// package, where a reference to another node is written {"$ref": "<id>"}.
package protocol
