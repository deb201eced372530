// Package grove implements an arena-owned scene-graph DOM and its chunked
// binary container format.
//
// grove is designed to be:
//   - Pointer-free: instances reference each other through opaque Refs,
//     never through native pointers, so mutation can't dangle or cycle
//   - Strongly typed: property values are a closed Variant union that
//     round-trips bit-exactly
//   - Schema-checked: every property is validated against an external
//     SchemaProvider before it is encoded or after it is decoded
//   - Compact: the wire format groups values by class into columnar
//     blocks with delta/interleaved integer encodings that compress well
//
// # Data Model
//
// A WeakDom owns every Instance of one tree, keyed by Ref. Trees are
// staged with InstanceBuilder and materialized by insertion:
//
//	dataModel := grove.NewInstanceBuilder("DataModel").
//		WithChild(grove.NewInstanceBuilder("Workspace").
//			WithProperty("FilteringEnabled", grove.NewBool(true))).
//		WithChild(grove.NewInstanceBuilder("Lighting").
//			WithProperty("Ambient", grove.NewColor3(1, 0, 0)))
//
//	dom := grove.NewWeakDom(dataModel)
//
// # Wire Container
//
// Serialize walks a WeakDom and writes a sequence of typed chunks (see
// package chunk): INST chunks declare instances per class, PROP chunks
// carry one columnar value block per class property, a PRNT chunk wires
// the tree, and an END chunk terminates the stream. Deserialize inverts
// the process and additionally reports a per-instance byte ledger.
//
// Compact file-local ids live only inside the stream; process-level Refs
// are never written to disk.
package grove
