package service

import (
	"github.com/tidwall/gjson"

	"github.com/lunahq/bulkops-api/internal/models"
)

// History entries have been written in more than one shape over time. Field
// name discovery is an ordered chain of extraction strategies, each tried in
// sequence until one finds a name; if none do, the revert fails explicitly
// rather than guessing a wrong field.
type fieldNameStrategy struct {
	name    string
	extract func(entry *models.HistoryEntry) string
}

var fieldNameStrategies = []fieldNameStrategy{
	{name: "metadata fieldName", extract: fromMetadataFieldName},
	{name: "sample update keys", extract: fromSampleUpdate},
	{name: "per-record update list", extract: fromUpdateList},
}

// extractFieldName returns the field the original run changed, and whether
// the entry is a multi-field run (which needs no single field name: its
// per-record old values carry their own field keys).
func extractFieldName(entry *models.HistoryEntry) (string, bool) {
	if gjson.GetBytes(entry.Metadata, "fieldUpdates").IsObject() {
		return "", true
	}
	for _, strategy := range fieldNameStrategies {
		if name := strategy.extract(entry); name != "" {
			return name, false
		}
	}
	return "", false
}

func fromMetadataFieldName(entry *models.HistoryEntry) string {
	return gjson.GetBytes(entry.Metadata, "fieldName").String()
}

func fromSampleUpdate(entry *models.HistoryEntry) string {
	return firstFieldKey(gjson.GetBytes(entry.Data, "sampleUpdate"))
}

// fromUpdateList handles the oldest shape, where the entry stored a list of
// per-record update payloads instead of a sample.
func fromUpdateList(entry *models.HistoryEntry) string {
	return firstFieldKey(gjson.GetBytes(entry.Data, "updates.0"))
}

func firstFieldKey(obj gjson.Result) string {
	if !obj.IsObject() {
		return ""
	}
	name := ""
	obj.ForEach(func(key, _ gjson.Result) bool {
		k := key.String()
		if k == "Id" || k == "id" || k == "attributes" {
			return true
		}
		name = k
		return false
	})
	return name
}

// usesRepresentativeOldValue reports whether per-record old values are
// missing and the revert must fall back to the single representative old
// value from metadata. This is a degraded path and is flagged on the revert
// entry.
func usesRepresentativeOldValue(entry *models.HistoryEntry) bool {
	first := gjson.GetBytes(entry.Data, "results.0")
	if !first.Exists() {
		return false
	}
	if first.Get("oldValue").Exists() {
		return false
	}
	return gjson.GetBytes(entry.Metadata, "oldValue").Exists()
}

// hasOldValues reports whether the entry carries any usable old values:
// per-record oldValue keys on the results, or the representative fallback
// in metadata. Entries with neither cannot be restored and the revert must
// be rejected rather than writing nulls.
func hasOldValues(entry *models.HistoryEntry) bool {
	if gjson.GetBytes(entry.Data, "results.0.oldValue").Exists() {
		return true
	}
	return gjson.GetBytes(entry.Metadata, "oldValue").Exists()
}
