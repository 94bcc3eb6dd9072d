// Package config defines the configuration for a Murmur node.
//
// Regardless of how Murmur is started, directly from Go code or as a standalone
// process from the command line, it uses the Config object defined in this
// package to store and forward configuration options. On top of these
// configuration options, Murmur relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional configuration
// files:
//
//  peers.json // (tcp transport only) a JSON list of {"id", "net_addr"} entries.
//  murmur.toml // (optional) the same options as the command line flags.
package config
