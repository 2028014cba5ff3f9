// Package config provides configuration management for the dagrun server.
//
// Configuration is loaded from environment variables using the env package.
// All configuration values have sensible defaults for development use; the
// memory backends need no external services:
//
//	DAGRUN_STORAGE=memory DAGRUN_EVENTS=memory dagrun
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
