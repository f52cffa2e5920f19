// Package config provides configuration loading and validation for the USB
// audio bridge. It handles YAML-based configuration with struct validation
// and supplies the defaults matching the device firmware.
package config
