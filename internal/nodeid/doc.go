// internal/nodeid/doc.go

/*
Package nodeid provides the identifier type for nodes of a resolver instance.

Node ids are assigned by the host and are opaque to the engine: any non-empty
string without control characters is accepted. Ids are unique within a single
resolver instance only.
*/
package nodeid
