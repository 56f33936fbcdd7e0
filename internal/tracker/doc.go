// Package tracker persists per-accession pipeline state in SQLite.
//
// File existence alone already gives the pipeline crash recovery, but it
// cannot distinguish a complete archive from a truncated one left by an
// interrupted transfer. The tracker records the byte size observed when an
// archive was acquired so resume checks can reject truncated leftovers, and
// it doubles as the durable status table behind the status command.
package tracker
