// Package events provides types and interfaces for observing task lifecycles.
//
// The task pool publishes a TaskEvent whenever a task is submitted, starts,
// finishes or is discarded during shutdown. Consumers such as progress
// reporters register an EventHandler with an emitter and never need to import
// the task package.
//
// The primary components are:
// - TaskEvent: a single lifecycle transition of a pooled task
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
package events
