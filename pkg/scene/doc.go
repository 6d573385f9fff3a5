// Package scene holds the in-memory scene graph: a project containing
// models, each model containing an ordered list of mesh contexts with
// their geometry buffers, plus a flat image (texture) list.
//
// The graph is deliberately not safe for concurrent use. The host owns
// it and touches it from exactly one goroutine; everything else talks
// to the host through queued work. Change notifications fire
// synchronously on that same goroutine, so subscribers observe a
// consistent graph for the duration of the callback.
package scene
