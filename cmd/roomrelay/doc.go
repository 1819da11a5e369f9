// Package main provides the entry point for roomrelay.
//
// roomrelay runs the relay server ("roomrelay serve") and doubles as a
// client for a running fleet: publishing to rooms, reading room sizes and
// probing health.
package main
