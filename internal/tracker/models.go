package tracker

import (
	"strings"
	"time"
)

// Status represents the acquisition/assembly lifecycle of one accession.
type Status string

const (
	StatusPending            Status = "pending"
	StatusCached             Status = "cached"
	StatusRestoredFromBackup Status = "restored_from_backup"
	StatusDownloaded         Status = "downloaded"
	StatusFailed             Status = "failed"
	StatusExtracted          Status = "extracted"
	StatusExtractFailed      Status = "extract_failed"
	StatusEmpty              Status = "empty"
	StatusAssembled          Status = "assembled"
)

var allStatuses = []Status{
	StatusPending,
	StatusCached,
	StatusRestoredFromBackup,
	StatusDownloaded,
	StatusFailed,
	StatusExtracted,
	StatusExtractFailed,
	StatusEmpty,
	StatusAssembled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// acquiredStatuses are the statuses meaning a local archive is present.
var acquiredStatuses = map[Status]struct{}{
	StatusCached:             {},
	StatusRestoredFromBackup: {},
	StatusDownloaded:         {},
	StatusExtracted:          {},
	StatusEmpty:              {},
	StatusAssembled:          {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Record is one accession's persisted pipeline state.
type Record struct {
	Accession    string
	Status       Status
	ArchiveBytes int64
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasArchive reports whether the record's status implies a local archive.
func (r Record) HasArchive() bool {
	_, ok := acquiredStatuses[r.Status]
	return ok
}

// Run records one orchestrator invocation.
type Run struct {
	ID         string
	Version    string
	BackupDir  string
	StartedAt  time.Time
	FinishedAt *time.Time
	Outcome    string
}

// Run outcomes.
const (
	RunOutcomeCompleted = "completed"
	RunOutcomeFailed    = "failed"
)
