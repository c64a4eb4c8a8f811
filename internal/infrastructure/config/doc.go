// Package config handles loading and validating the purifier service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a local .env file
//   - Overriding with PURIFIER_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, d := range cfg.Devices {
//	    fmt.Println(d.Name, d.Model)
//	}
package config
