// Package config assembles the bridge configuration from command-line flags,
// the environment (optionally seeded from a .env file), a YAML file, and
// built-in defaults, in that order of precedence.
package config
