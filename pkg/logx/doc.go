// Package logx configures rotabot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, rotated by lumberjack
//   - An optional Telegram sink (min-level + rate limiting)
package logx
