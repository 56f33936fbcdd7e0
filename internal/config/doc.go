// Package config loads, normalizes, and validates the TOML configuration that
// every pipeline stage consumes. It also owns the canonical on-disk layout:
// all per-accession and artifact path construction goes through Config
// methods so stages never assemble paths by hand.
package config
