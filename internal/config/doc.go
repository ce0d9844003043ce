// Package config loads service settings from defaults, an optional YAML file
// and MODERATION_-prefixed environment variables, then validates them.
package config
