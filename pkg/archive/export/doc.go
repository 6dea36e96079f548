// Package export writes archived entries as JSON or CSV.
package export
