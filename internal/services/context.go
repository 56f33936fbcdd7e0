package services

import "context"

type contextKey string

const (
	accessionKey contextKey = "accession"
	stageKey     contextKey = "stage"
	runIDKey     contextKey = "run_id"
)

// WithAccession annotates context with the genome accession being processed.
func WithAccession(ctx context.Context, accession string) context.Context {
	if accession == "" {
		return ctx
	}
	return context.WithValue(ctx, accessionKey, accession)
}

// AccessionFromContext extracts the accession if present.
func AccessionFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(accessionKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(stageKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRunID annotates context with the pipeline run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
