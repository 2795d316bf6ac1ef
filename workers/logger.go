package workers

import "listing_harvester/models"

// LogFunc writes a worker event to the run ledger.
type LogFunc func(level models.LogLevel, source, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(level models.LogLevel, source, message string) {}
