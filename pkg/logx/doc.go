// Package logx wraps zerolog behind a small Field-based API so components can
// hold Logger values that stay live across runtime config reloads.
//
// Sinks: console, append-only file, and an optional rate-limited push sink
// that forwards warn+ records to an operator recipient over the notification
// channel.
package logx
