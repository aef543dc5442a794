// Package core provides the business logic of the bulk importer.
//
// This package holds all domain logic independent of any transport. It is
// used by the HTTP server, the importctl CLI and tests without modification.
// The target store is reached only through [store.Client]; row sources only
// through [tabular.Fetcher].
//
// # Architecture
//
// One import run flows through these steps:
//
//  1. The mapping compiler turns a [Job]'s column mappings into immutable
//     [Mappings]: plain field mappings, relation mappings ("supplier.name")
//     and per-column format specs.
//  2. Rows are split into batches. For batched jobs a [Checkpoint] records the
//     next batch so an interrupted run resumes where it stopped.
//  3. Per batch, the [Formatter] normalizes values, the [RelationResolver]
//     looks up related record ids, and the [Reconciler] decides create or
//     update against existing records.
//  4. The [Executor] commits one createMany and one upsertMany mutation, then
//     the checkpoint advances.
//
// [Service] wraps the [Pipeline] for callers: it loads the source, caps
// concurrent runs with a [RunLimiter], serializes runs per source and records
// run history.
//
// # Job configuration
//
// Jobs are YAML or JSON documents:
//
//	entity: Order
//	source:
//	  url: s3://imports/orders.csv
//	mappings:
//	  - sourceColumn: order_no
//	    targetPath: order_number
//	    required: true
//	  - sourceColumn: supplier
//	    targetPath: supplier.name
//	  - sourceColumn: total
//	    targetPath: order_total
//	    formatType: decimal
//	deduplicate:
//	  enabled: true
//	  uniqueColumn: order_no
//	batching:
//	  enabled: true
//	  size: 500
//
// # Error Handling
//
// Every failure is fatal to the run and surfaces as an [*Error] whose Kind
// matches one of [ErrConfiguration], [ErrSourceUnavailable],
// [ErrOversizedResult] or [ErrStoreMutation] via errors.Is. [MapError] turns
// any error into a [UserMessage] with a support code.
package core
