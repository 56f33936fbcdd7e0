// Package main hosts the refbuild CLI entrypoint and command graph.
//
// The Cobra-based command tree drives the reference-database build: the full
// pipeline via `run`, each stage standalone for repairing a partial run, the
// tracker view via `status`, and configuration scaffolding. It centralizes
// configuration resolution, tracker access, and logger setup so subcommands
// stay thin.
//
// Keep this package lean: pipeline behaviour belongs in the internal
// packages; this tree only translates flags into those calls.
package main
