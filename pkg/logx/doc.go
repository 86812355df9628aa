// Package logx is remindbot's structured logging on top of zerolog.
//
// Console output is human readable, the optional file sink is JSON, and the
// chat sink mirrors warnings into the operator's log chat with the reminder
// keys (id, scope, author, rid) listed first. Loggers obtained from a Service
// follow hot-reloaded configuration.
package logx
