// Package logger provides structured logging for devreload using zerolog.
//
// It supports console and JSON output, log level configuration, and
// component-scoped loggers with structured fields.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "console"
//
// # Usage
//
//	log := logger.WithComponent("headless")
//	log.Info("page loaded", logger.Fields("url", u))
package logger
