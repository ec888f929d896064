// Package importer implements the bulk-import reconciliation engine for
// items and bills of materials.
//
// This package contains all domain logic independent of any UI or transport
// layer. It can be used by web handlers, CLI tools, or tests without
// modification.
//
// # Pipeline
//
// An import batch moves through four stages:
//
//  1. Parse: the uploaded file becomes a slice of [Record] values, typed by
//     source format ([ParseForKind]). Parsing never validates.
//  2. Validate: each row passes through [ValidateItemRow] or
//     [ValidateBOMRow], which accumulate every failing rule's message
//     instead of stopping at the first.
//  3. Resolve: structurally valid rows are checked against a [Snapshot] of
//     the catalog taken once before the batch started. Rows that collide
//     with existing names, or reference items that do not exist yet, are
//     deferred for manual review rather than rejected.
//  4. Commit: accepted rows are created through the [Catalog] API. Item
//     creates fan out concurrently; BOM creates run one at a time in source
//     order. A failed create converts that row into a rejection carrying
//     the service's message and does not abort the batch.
//
// # Batch Lifecycle
//
// [Service.StartImport] returns a batch id immediately and processes in the
// background. [Service.SubscribeProgress] streams [BatchProgress] updates,
// [Service.GetResult] blocks for the final [BatchReport]. Every source row
// lands in exactly one bucket: accepted, pending, or rejected.
//
// # Review Stores
//
// The outcome of the most recent batch per entity kind is retained in a
// [ReviewStore] and replaced wholesale by the next batch. Stores are
// in-memory only; restarting the process clears them.
package importer
