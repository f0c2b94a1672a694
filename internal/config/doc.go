// Package config loads the chatwalletd configuration from JSON, YAML or TOML
// files and fills defaults for every backend the daemon can wire: record
// stores, pending-confirmation sessions, side-effect events and the ledger
// chain definitions.
package config
