// Package scheduler runs batches of external console-tool invocations
// with bounded parallelism.
//
// A Job describes one invocation for one drawing. The Scheduler admits
// pending Jobs in submission order up to a configurable cap, supervises
// each process through a runner, and republishes lifecycle and sanitized
// output events on a single channel for a consumer to render.
package scheduler
