// Package errors defines AppError, the coded error returned by hosts, the
// notifier and configuration. Codes decide whether a failure is retried.
package errors
