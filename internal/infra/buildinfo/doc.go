// Package buildinfo reports the version of the running binary, shown by
// `roomrelay-server version` and logged at startup.
package buildinfo
