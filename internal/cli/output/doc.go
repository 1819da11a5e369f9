// Package output formats roomrelay command results as tables, JSON or YAML.
package output
