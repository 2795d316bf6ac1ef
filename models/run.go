package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// HarvestRun is one market's pass through the collector.
type HarvestRun struct {
	ID            int64      `json:"id" db:"id"`
	RunUUID       string     `json:"run_uuid" db:"run_uuid"`
	Market        string     `json:"market" db:"market"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at" db:"finished_at"`
	Status        RunStatus  `json:"status" db:"status"`
	Mode          string     `json:"mode" db:"mode"`
	Pages         int        `json:"pages" db:"pages"`
	ListingsFound int        `json:"listings_found" db:"listings_found"`
	ListingsSaved int        `json:"listings_saved" db:"listings_saved"`
	Dropped       int        `json:"dropped" db:"dropped"`
	ErrorsCount   int        `json:"errors_count" db:"errors_count"`
}
