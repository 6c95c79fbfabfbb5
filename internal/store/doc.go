// Package store persists scheduled-job records.
//
// Two drivers: a JSON file with atomic temp-file+rename overwrite (default)
// and SQLite behind the "sqlite" build tag. Neither driver serializes
// callers; that is the job of the single repository owner in internal/jobs.
package store
