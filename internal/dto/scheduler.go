package dto

// Generation strategies. Sequential is the default and the most robust.
const (
	StrategySinglePass  = "single_pass"
	StrategyStagedShift = "staged_shift"
	StrategySequential  = "sequential"
)

// GenerateRequest triggers one timetable generation pass. Groups may be
// addressed directly by id or through the legacy program + term-level pair.
type GenerateRequest struct {
	Strategy  string   `json:"strategy" validate:"omitempty,oneof=single_pass staged_shift sequential"`
	GroupIDs  []string `json:"groupIds" validate:"required_without=ProgramID,omitempty,min=1,dive,required"`
	ProgramID string   `json:"programId" validate:"required_without=GroupIDs"`
	TermLevel int      `json:"termLevel" validate:"omitempty,min=1"`
	Period    string   `json:"period" validate:"required"`
	Version   string   `json:"version"`
	Days      []int    `json:"days" validate:"omitempty,min=1,dive,min=1,max=7"`
	Actor     string   `json:"actor"`
}

// Diagnostic is one finding from the feasibility pre-check or the snapshot
// loader. Blocking diagnostics prevent any solver invocation.
type Diagnostic struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	GroupCode string `json:"groupCode,omitempty"`
	SubjectID string `json:"subjectId,omitempty"`
}

// DiagnosticReport aggregates feasibility findings. Never persisted.
type DiagnosticReport struct {
	Blocking []Diagnostic `json:"blocking,omitempty"`
	Warnings []Diagnostic `json:"warnings,omitempty"`
}

// Feasible reports whether solving may proceed.
func (r DiagnosticReport) Feasible() bool {
	return len(r.Blocking) == 0
}

// Unit outcome statuses.
const (
	UnitStatusOK     = "ok"
	UnitStatusFailed = "failed"
)

// UnitResult reports the outcome of one solve unit (one group in sequential
// mode, one shift batch in staged mode, the whole request in single-pass).
type UnitResult struct {
	GroupIDs    []string     `json:"groupIds"`
	GroupCodes  []string     `json:"groupCodes"`
	Status      string       `json:"status"`
	Records     int          `json:"records"`
	SolverState string       `json:"solverState,omitempty"`
	Error       string       `json:"error,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// GenerateResult is the structured outcome of one generation pass. Partial
// failure in sequential mode is a valid terminal state, not an error.
type GenerateResult struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Strategy  string       `json:"strategy"`
	Period    string       `json:"period"`
	Version   string       `json:"version"`
	Units     []UnitResult `json:"units"`
	Generated int          `json:"generated"`
	Failed    int          `json:"failed"`
	Warnings  []Diagnostic `json:"warnings,omitempty"`
}

// SlotRef addresses one (weekday, time-slot) coordinate.
type SlotRef struct {
	Weekday    int    `json:"weekday" validate:"required,min=1,max=7"`
	TimeSlotID string `json:"timeSlotId" validate:"required"`
}

// RepairRequest narrows a repair pass to one teacher. When Changes is empty
// the engine consumes the teacher's unprocessed availability-change feed.
type RepairRequest struct {
	TeacherID string    `json:"teacherId" validate:"required"`
	Period    string    `json:"period" validate:"required"`
	Changes   []SlotRef `json:"changes" validate:"omitempty,dive"`
	Actor     string    `json:"actor"`
	Async     bool      `json:"async"`
}

// RepairResult reports one repair pass end to end.
type RepairResult struct {
	Detected    int             `json:"detected"`
	BackupID    string          `json:"backupId,omitempty"`
	Invalidated int             `json:"invalidated"`
	Regenerated *GenerateResult `json:"regenerated,omitempty"`
	Unrepaired  []string        `json:"unrepairedGroups,omitempty"`
	Message     string          `json:"message"`
}

// RestoreRequest replays a backup snapshot.
type RestoreRequest struct {
	BackupID string `json:"backupId" validate:"required"`
	Actor    string `json:"actor"`
}

// RestoreResult reports how many rows were reinstated.
type RestoreResult struct {
	BackupID    string `json:"backupId"`
	Deactivated int    `json:"deactivated"`
	Restored    int    `json:"restored"`
}

// ScheduleQuery filters committed assignments for listing.
type ScheduleQuery struct {
	Period    string `form:"period" json:"period"`
	GroupCode string `form:"groupCode" json:"groupCode"`
	TeacherID string `form:"teacherId" json:"teacherId"`
}
