package usecase

import "time"

// Tier identifies one of the four retention classes.
type Tier int

const (
	Hourly Tier = iota
	Daily
	Weekly
	Monthly
)

// String returns the lowercase tier name used in slot directory names
// and in log/config output.
func (t Tier) String() string {
	switch t {
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return "unknown"
	}
}

// RetentionPolicy is the (H, D, W, M) ring-size quadruple from §3.
// H must be >= 1; the others may be 0 to disable that tier.
type RetentionPolicy struct {
	Hourlies  uint
	Dailies   uint
	Weeklies  uint
	Monthlies uint
}

// Count returns the ring size for the given tier.
func (p RetentionPolicy) Count(t Tier) uint {
	switch t {
	case Hourly:
		return p.Hourlies
	case Daily:
		return p.Dailies
	case Weekly:
		return p.Weeklies
	case Monthly:
		return p.Monthlies
	default:
		return 0
	}
}

// DestinationKind distinguishes a fixed destination from a
// least-recently-used pool (§3, Destination policy).
type DestinationKind int

const (
	DestinationFixed DestinationKind = iota
	DestinationLRU
)

// DestinationPolicy is either Fixed(path) or LRU(list_of_paths).
type DestinationPolicy struct {
	Kind       DestinationKind
	Fixed      string
	Candidates []string
}

// BackupJob is the tuple resolved from configuration for a single
// (host, remote_directory) pair at the moment it is about to run (§3).
type BackupJob struct {
	Host        string
	Directory   string
	Excludes    []string
	Retention   RetentionPolicy
	Destination DestinationPolicy
	AutoTime    bool
	Literal     bool

	HourlyDirName  string
	DailyDirName   string
	WeeklyDirName  string
	MonthlyDirName string

	MustExceed time.Duration
	CreateDir  bool
}

// DirNameFor returns the configured slot-base name for a tier
// (HourlyDir/DailyDir/WeeklyDir/MonthlyDir, default hourly/daily/weekly/monthly).
func (j BackupJob) DirNameFor(t Tier) string {
	switch t {
	case Hourly:
		if j.HourlyDirName != "" {
			return j.HourlyDirName
		}
	case Daily:
		if j.DailyDirName != "" {
			return j.DailyDirName
		}
	case Weekly:
		if j.WeeklyDirName != "" {
			return j.WeeklyDirName
		}
	case Monthly:
		if j.MonthlyDirName != "" {
			return j.MonthlyDirName
		}
	}
	return t.String()
}

// CalendarFlags are the booleans derived by the Calendar Trigger (§4.5).
type CalendarFlags struct {
	DoDailies   bool
	DoWeeklies  bool
	DoMonthlies bool
}

// JobOutcome summarizes how a single (host, directory) job concluded,
// consumed by the run logger and the CLI's end-of-run failure logging.
type JobOutcome struct {
	Host      string
	Directory string
	Skipped   bool
	Err       error
	BytesRead int64
}

// RunSummary aggregates the outcomes of every job in one engine
// invocation, plus whether any error was logged (forces email per §4.7).
type RunSummary struct {
	Outcomes     []JobOutcome
	ErrorsLogged bool
	Transcript   []string
	RunID        string
}
