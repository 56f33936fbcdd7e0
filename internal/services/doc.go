// Package services defines shared utilities consumed by the pipeline stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp accessions, stage names, and run identifiers
//     for logging and tracing.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (fatal configuration errors vs retryable transient
//     failures) consistent across stages.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
