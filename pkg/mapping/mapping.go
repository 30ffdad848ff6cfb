// Package mapping turns raw gateway JSON documents into normalized
// measurement records. Every mapper is a pure function: missing or null
// fields are omitted (or kept as explicit nulls where the measurement
// calls for it), and an empty or unparseable document maps to zero
// records. Mappers never return errors; malformed transport-level JSON is
// already rejected by the client.
package mapping

import "time"

// epochToTime converts epoch seconds to a UTC instant with second
// precision, defaulting to "now" when the payload carries no timestamp.
func epochToTime(epoch *int64) time.Time {
	if epoch == nil {
		return time.Now().UTC().Truncate(time.Second)
	}
	return time.Unix(*epoch, 0).UTC()
}

// addField adds a field only when the source value is present.
func addField(fields map[string]any, key string, v *float64) {
	if v != nil {
		fields[key] = *v
	}
}
