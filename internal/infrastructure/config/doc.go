// Package config loads and validates the access node configuration.
//
// Values are resolved in three layers: hard-coded defaults matching the
// reference hardware, the YAML file, then GRAYLOGIC_* environment variables.
// Validate reports every problem at once so an operator can fix a broken
// file in one pass.
//
// Security Considerations:
//   - The JWT secret, operator password hash and TOTP secret belong in the
//     environment, not in the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/accessnode.yaml")
//	if err != nil {
//	    return err
//	}
//	poll := config.Millis(cfg.Node.PollInterval)
package config
