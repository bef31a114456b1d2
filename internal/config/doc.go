// Package config loads server settings from the environment.
//
// Values come from process environment variables, optionally seeded from a
// .env file in the working directory. Defaults bind all interfaces on port
// 5000 with debug diagnostics disabled.
package config
