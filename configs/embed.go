// Package configs provides embedded configuration templates for askfs.
//
// Templates are embedded at build time with //go:embed so they are
// available in every distribution, source builds included. The project
// template is written by `askfs connect` as .askfs.yaml when no project
// config exists yet; see internal/config for the loading hierarchy.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented .askfs.yaml template written
// into a project on first connect. Every option is optional; the file
// documents the defaults rather than changing them.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
