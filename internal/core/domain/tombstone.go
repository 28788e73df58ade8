package domain

import "time"

// Tombstone marks a row as soft-deleted. Rows are never physically removed.
type Tombstone struct {
	DeletedAt *time.Time
}

func (t Tombstone) IsDeleted() bool { return t.DeletedAt != nil }

// Live is the single read-path filter for soft-deleted rows.
func Live[T interface{ IsDeleted() bool }](rows []T) []T {
	out := rows[:0:0]
	for _, r := range rows {
		if !r.IsDeleted() {
			out = append(out, r)
		}
	}
	return out
}
