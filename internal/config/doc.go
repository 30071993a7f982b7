// Package config provides configuration loading and validation for the
// voice order service. It handles YAML-based configuration with struct
// validation for every section.
package config
