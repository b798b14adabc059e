// Package component defines the lifecycle contract shared by long-running
// parts of devreload and a registry that starts and stops them in order.
//
// A Component is started in registration order and stopped in reverse.
// Components that also implement Describable appear in the startup summary.
package component
