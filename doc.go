// Package taskx runs deferred function calls on worker processes through a
// shared queue store.
//
// Producers push work items onto a named queue; consumers pop them, decode
// the arguments and call the function registered under the item's key.
// Each item is handed to exactly one consumer and is never retried.
//
// Quick start:
//  1. Open a backend.Adapter (redisq for many processes, boltq or memq for one).
//  2. Build a Registry and register the callables every consumer can run.
//  3. Create a TaskQueue with New and enqueue with EnqueueCall.
//  4. On consumers, call Run (or ExecuteNext) on a TaskQueue with the same name.
//  5. Optionally pass a SQLStore in Options to keep each item's lifecycle.
//
// Client and Processor do the same over asynq, for deployments that already
// run asynq servers.
package taskx
