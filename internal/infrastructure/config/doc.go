// Package config handles loading, validating and saving the bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding broker and device settings with environment variables
//   - Validation of required fields
//   - Default value handling
//   - Persisting edited settings back to disk
//
// Security Considerations:
//   - Broker passwords and the API token secret should be set via environment variables
//   - The config file is written with restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Device.Address)
//
// A loaded Config is a snapshot: the bridge reads it once per start and
// never mutates it while running.
package config
