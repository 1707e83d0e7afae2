// Package config provides configuration management for obsctl.
//
// This package implements a layered configuration system that allows users to
// customize obsctl's behavior through YAML files. Configuration is loaded from
// multiple sources and merged in a specific order, with later sources overriding
// earlier ones.
//
// # Configuration Layers
//
// Configuration is loaded and merged in the following order:
//
//  1. Default Configuration (embedded in binary)
//     - Declares the managed observability services with sensible defaults
//     - Ensures obsctl works out-of-the-box
//
//  2. User Configuration (~/.config/obsctl/config.yaml)
//     - User-specific settings that apply to all projects
//     - Useful for personal executable locations and port preferences
//
//  3. Project Configuration (./.obsctl/config.yaml)
//     - Project-specific settings in the current directory
//     - Allows teams to share configuration via version control
//
// Command-line flags are applied on top of the merged configuration and win
// over every file layer.
//
// # Configuration Structure
//
// The configuration file uses YAML format:
//
//	globalSettings:
//	  workDir: "~/.obsctl"
//
//	services:
//	  - name: "prometheus"
//	    enabled: true
//	    portRange: [9090, 9091, 9092]
//	    executableCandidates:
//	      - "prometheus"
//	      - "~/tools/prometheus-*/prometheus"
//	    settleDelay: 1.5s
//
// Only data fields can be overridden from YAML. The argument and environment
// builders for each known service are defined in code (see defaults.go) and
// are attached to the merged definitions by BuildSpecs.
package config
