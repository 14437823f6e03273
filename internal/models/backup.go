package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ScheduleBackup is a named, timestamped snapshot of committed assignments
// taken before the repair engine invalidates them. It is the only undo
// mechanism: Restore replays Entries verbatim.
type ScheduleBackup struct {
	ID        string         `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	TeacherID string         `db:"teacher_id" json:"teacher_id"`
	Period    string         `db:"period" json:"period"`
	Entries   types.JSONText `db:"entries" json:"entries"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// DecodeEntries unmarshals the snapshot's assignment rows.
func (b *ScheduleBackup) DecodeEntries() ([]AcademicSchedule, error) {
	var entries []AcademicSchedule
	if err := json.Unmarshal(b.Entries, &entries); err != nil {
		return nil, fmt.Errorf("decode backup entries: %w", err)
	}
	return entries, nil
}
