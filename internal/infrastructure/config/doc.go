// Package config handles loading and validating appliance bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Sensitive values (the appliance password, broker credentials) should
//     be set via environment variables rather than committed to a file
//   - The config file should have restricted permissions (0600)
//   - The default appliance password must be changed before exposing the
//     API beyond a trusted network
//
// Performance Characteristics:
//   - Configuration is loaded once at startup
//   - No runtime overhead after initial load
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Appliance.ControlTopic)
package config
