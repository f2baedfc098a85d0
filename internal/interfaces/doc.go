// Package interfaces holds compile-time checks that concrete types satisfy
// the interfaces they are wired through.
//
// # Extension Points
//
//   - syncer.Reconciler: reconciles one sync key of a component with the
//     server. Content types that store offline data build one with
//     offline.EntitySync and register the resulting Coordinator with
//     syncer.Handlers in entrypoint.NewApp.
//   - transport.Transport: remote web-service calls. Decorators (Retry,
//     Cached) wrap an inner Transport.
//   - cache.Cache: memory or Redis backend for cached reads and package status.
//   - packages.Manifest and packages.Fetcher: where package revisions and
//     files come from.
//
// # Adding a New Content Type
//
// Define the offline payload and an offline.Collection for it. Implement the
// server fetch, submit and invalidate steps and compose them into an
// offline.EntitySync, then wrap its Reconcile and Pending in a
// syncer.Coordinator. Register the coordinator in entrypoint.NewApp and add
// a syncer.Handler check for it below.
package interfaces
