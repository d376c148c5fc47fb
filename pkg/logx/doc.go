// Package logx is a thin structured-logging layer over zerolog.
//
// It exposes a small Logger with fixed-field derivation (With) and a
// Service that can swap sinks (console/file) at runtime when the config
// is reloaded.
package logx
