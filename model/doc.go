// Package model defines the shared identifier and record types used
// across the runindex packages.
//
// The types here are deliberately small and copyable. They carry no
// behavior beyond formatting; all semantics live in the scan, validate,
// index and stream packages.
package model
