package websocket

import "strings"

const (
	notificationsPrefix = "notifications:"
	resourcePrefix      = "resource:"
	tablePrefix         = "table:"
)

// NotificationChannel is the per-user notification topic.
func NotificationChannel(userID string) string {
	return notificationsPrefix + userID
}

// ResourceChannel is the topic for a shared resource such as a receipt.
func ResourceChannel(resourceID string) string {
	return resourcePrefix + resourceID
}

// TableChannel is the legacy raw change topic for a datastore table.
func TableChannel(table string) string {
	return tablePrefix + table
}

// IsTableChannel reports whether key belongs to the legacy table family.
func IsTableChannel(key string) bool {
	return strings.HasPrefix(key, tablePrefix)
}
