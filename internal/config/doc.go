// Package config holds the worker's process configuration.
//
// Values come from three layers, later ones winning: built-in defaults, an
// optional HCL file, and command-line flags applied by the cli package.
package config
