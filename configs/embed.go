// Package configs provides the embedded configuration template for
// demongrep.
//
// The template is embedded at build time using Go's //go:embed directive
// so it is available in all distributions (source builds and binary
// releases alike). `demongrep init` writes it to the project root as
// .demongrep.yml; internal/config.Load layers it between the hardcoded
// defaults and the DEMONGREP_* environment overrides.
package configs

import _ "embed"

// ProjectConfigTemplate is the template for project-level configuration,
// written to .demongrep.yml in the project root by `demongrep init`. The
// template ships fully commented so a checked-in config documents itself.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
