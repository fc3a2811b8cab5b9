// Package logx is remindbot's structured logging layer.
//
// Logger wraps zerolog with typed Field helpers. Service owns the sinks:
// a readable console writer, an optional JSON file and an optional
// rate-limited mirror of warnings into an ops Telegram chat. Apply swaps
// sinks and levels at runtime on config reload.
package logx
