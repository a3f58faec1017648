// Package config provides configuration loading and validation for the
// ripper service. Configuration is read from YAML, layered over defaults,
// then overridden from RIPPER_* environment variables and validated section
// by section.
package config
