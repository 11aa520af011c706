// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files and CODEBOX_* environment variables. It
// covers the MCP server, the JSON HTTP API, sandbox resource limits, logging
// and per-language image and environment overrides.
//
// sandbox.timeout_sec bounds the run step only. Compiled languages get a
// separate sandbox.compile_timeout_sec budget, so a slow cold toolchain does
// not eat into the program's own time.
//
// Usage:
//
//	cfg, err := config.Load("/etc/codebox/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Sandbox backend: %s\n", cfg.Sandbox.Backend)
package config
