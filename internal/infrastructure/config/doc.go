// Package config handles loading and validating catalogdb configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The query catalog itself lives in its own document (see package catalog);
// this file only says where to find it.
//
// Security Considerations:
//   - Sensitive values (InfluxDB token, MQTT password) should be set via
//     environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Database.Path)
package config
