// Package algebra implements the relational operators used to evaluate rule bodies.
//
// A rule body is compiled into a Plan: a left-deep pipeline of row operators followed by a head
// projection and, for lattice-valued heads, a gather step. Rows carry one tuple per body atom.
//
// Key components:
//   - JoinOp: binds the next body atom using a hash index over the equated columns. The first
//     atom of a plan is a scan, i.e., a join against the empty row.
//   - SelectionOp: filters rows on a predicate.
//   - AntiJoinOp: NOT EXISTS against the full, merged relation. It never reads a delta.
//   - ProjectionOp: builds head tuples from rows.
//   - GatherOp: groups head tuples by key and reduces the value column with the lattice join.
//   - UnionOp: the union of the plans producing the same head relation.
//
// Operators read relations through a Snapshot. Each atom of a plan reads either the full
// relation or its delta, see Source.
package algebra
