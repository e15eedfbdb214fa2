// Package configs embeds the configuration template written by `codeindex init`.
//
// The template documents every key of internal/config.Config with its default
// value, so it must stay decodable with unknown-field checking enabled.
package configs

import _ "embed"

// ProjectConfigTemplate is written to .codeindex.yaml in the project root.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
