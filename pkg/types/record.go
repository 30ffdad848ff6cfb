package types

import "time"

// Tag is a single indexed label on a Record. Tags are kept as an ordered
// slice so a record round-trips with the tag order the mapper chose.
type Tag struct {
	Key   string
	Value string
}

// Record is one normalized measurement produced by a mapper and consumed
// exactly once by the sink. Fields may hold nil values (the live snapshot
// reports absent categories as explicit nulls); a record with no fields at
// all is never emitted.
type Record struct {
	Measurement string
	Tags        []Tag
	Fields      map[string]any
	Timestamp   time.Time
}

// Tag returns the value of the named tag, or "" if the record doesn't
// carry it.
func (r Record) Tag(key string) string {
	for _, t := range r.Tags {
		if t.Key == key {
			return t.Value
		}
	}
	return ""
}

// HasFields reports whether the record carries at least one field,
// including explicit nulls.
func (r Record) HasFields() bool {
	return len(r.Fields) > 0
}
