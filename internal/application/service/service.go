// Package service implements the portal use cases around the approval
// engine: supplier onboarding, the approver directory, attachments, GST
// checks and exports.
package service

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
