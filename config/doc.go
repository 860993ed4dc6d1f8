// Package config handles loading and parsing of configuration from YAML files
// and environment variables. It defines the Sensu and Consul endpoints, the
// loop timing, the optional status server and the logging level.
package config
