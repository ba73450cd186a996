// Package config defines the service's startup configuration surface:
// an optional YAML file read first, then environment variables applied
// on top, matching the override order the command layer uses elsewhere
// in the ambient stack.
package config
