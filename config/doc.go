// Package config loads the agentmem daemon configuration from defaults,
// an optional YAML file, and environment variables, in that precedence.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("AGENTMEM").
//	    Load()
package config
