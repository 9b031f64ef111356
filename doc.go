// Package exengine is a hardware-control runtime for laboratory
// instruments. An Engine owns a named-worker executor, a device proxy
// registry, a subscription bus, and the data handlers attached to
// DataProducing events, wiring them together behind a small embedding
// API: Submit/SubmitBatch to run events, RegisterDevice to get a
// synchronous-looking proxy backed by a worker's FIFO queue, and
// Subscribe to observe notifications.
//
// A host process typically owns exactly one Engine; Init/Instance/
// Shutdown are provided for callers that prefer a process-wide
// singleton over threading an *Engine through their call graph.
package exengine
