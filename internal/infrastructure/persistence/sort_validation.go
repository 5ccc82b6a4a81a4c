package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "ASC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	normalized := strings.ToUpper(strings.TrimSpace(orderDir))
	if normalized == "DESC" {
		return "DESC"
	}
	return "ASC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
// Sort fields come from query parameters and are spliced into ORDER BY, so
// anything outside the whitelist never reaches the query.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// ConnectorSortFields contains allowed sort fields for connectors
var ConnectorSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"updated_at":   true,
	"provider":     true,
	"status":       true,
	"enabled":      true,
	"last_sync_at": true,
}

// SyncLogSortFields contains allowed sort fields for sync logs
var SyncLogSortFields = map[string]bool{
	"id":           true,
	"created_at":   true,
	"started_at":   true,
	"completed_at": true,
	"status":       true,
	"type":         true,
}

// WebhookDeliverySortFields contains allowed sort fields for webhook deliveries
var WebhookDeliverySortFields = map[string]bool{
	"id":              true,
	"created_at":      true,
	"last_attempt_at": true,
	"status":          true,
	"event_type":      true,
	"attempt_count":   true,
}
