// Package app contains the core application logic. It wires configuration,
// logging, metrics and the built-in resolver types into a worker, and runs
// it on a transport, decoupled from any specific entrypoint like a CLI.
package app
