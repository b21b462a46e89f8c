package configfile

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/snapback/snapback2/internal/usecase"
	"github.com/snapback/snapback2/internal/usecase/configview"
)

// Defaults from the typed key table in §4.1.
const defaultMustExceed = 5 * time.Minute

// GlobalSettings holds the top-level keys that are not per-job (§6, §7):
// log file locations, mail settings, and the default host identity.
type GlobalSettings struct {
	LogFile     string
	DebugFile   string
	ChargeFile  string
	AdminEmail  string
	AlwaysEmail bool
	SendMail    string
	MyHost      string
}

// ResolveGlobals extracts the process-wide settings from the root scope.
func ResolveGlobals(root *configview.Scope) GlobalSettings {
	myHost := root.String("MyHost", "")
	if myHost == "" {
		if h, err := os.Hostname(); err == nil {
			myHost = h
		}
	}
	return GlobalSettings{
		LogFile:     root.String("LogFile", "/var/log/snapback"),
		DebugFile:   root.String("DebugFile", ""),
		ChargeFile:  root.String("ChargeFile", ""),
		AdminEmail:  root.String("AdminEmail", ""),
		AlwaysEmail: root.Bool("AlwaysEmail", false),
		SendMail:    root.String("SendMail", "/usr/sbin/sendmail -t"),
		MyHost:      myHost,
	}
}

// ResolveJobs walks every <Backup host> block (and its nested
// <BackupDirectory path> blocks, or its Directory list entries) into
// a flat slice of BackupJob values ready for the engine, matching the
// "Backup job ... resolved from configuration at the point it is
// about to run" contract in §3.
//
// hostFilter and dirFilter, when non-nil, restrict the result to jobs
// whose host or directory matches (the engine's -p/-P flags, §6).
func ResolveJobs(root *configview.Scope, hostFilter, dirFilter func(string) bool) ([]usecase.BackupJob, error) {
	var jobs []usecase.BackupJob
	for _, hostScope := range root.ChildrenNamed("Backup") {
		host := hostScope.String("BackupHost", hostScope.Param)
		if host == "" {
			return nil, fmt.Errorf("%w: <Backup> block missing host parameter", usecase.ErrConfigFatal)
		}
		if hostFilter != nil && !hostFilter(host) {
			continue
		}

		hourlies, err := hostScope.Uint("Hourlies", 0)
		if err != nil {
			return nil, fmt.Errorf("%w: host %s: %v", usecase.ErrConfigFatal, host, err)
		}
		if hourlies < 1 {
			return nil, fmt.Errorf("%w: host %s: Hourlies must be >= 1", usecase.ErrConfigFatal, host)
		}

		dirScopes, dirs, err := resolveDirectories(hostScope)
		if err != nil {
			return nil, fmt.Errorf("%w: host %s: %v", usecase.ErrConfigFatal, host, err)
		}

		for i, dir := range dirs {
			if dirFilter != nil && !dirFilter(dir) {
				continue
			}
			scope := hostScope
			if dirScopes[i] != nil {
				scope = dirScopes[i]
			}
			job, err := buildJob(scope, host, dir)
			if err != nil {
				return nil, fmt.Errorf("%w: host %s dir %s: %v", usecase.ErrConfigFatal, host, dir, err)
			}
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// resolveDirectories returns, in declaration order, the directory
// paths configured for a host either via repeated `Directory` scalars
// or via nested <BackupDirectory path> blocks (which additionally
// supply a scope for per-directory overrides). dirScopes[i] is nil
// when the directory came from a plain Directory directive with no
// matching nested block.
func resolveDirectories(hostScope *configview.Scope) ([]*configview.Scope, []string, error) {
	nested := hostScope.ChildrenNamed("BackupDirectory")
	nested = append(nested, hostScope.ChildrenNamed("BackupDir")...)
	byPath := map[string]*configview.Scope{}
	for _, n := range nested {
		byPath[n.Param] = n
	}

	plain := hostScope.StringList("Directory")
	var dirs []string
	var scopes []*configview.Scope
	seen := map[string]bool{}
	for _, d := range plain {
		if seen[d] {
			continue
		}
		seen[d] = true
		dirs = append(dirs, d)
		scopes = append(scopes, byPath[d])
	}
	// Nested blocks with no matching Directory directive still name a
	// directory to back up.
	for _, n := range nested {
		if seen[n.Param] {
			continue
		}
		seen[n.Param] = true
		dirs = append(dirs, n.Param)
		scopes = append(scopes, n)
	}
	if len(dirs) == 0 {
		return nil, nil, fmt.Errorf("no Directory or BackupDirectory configured")
	}
	return scopes, dirs, nil
}

func buildJob(scope *configview.Scope, host, dir string) (usecase.BackupJob, error) {
	hourlies, err := scope.Uint("Hourlies", 0)
	if err != nil {
		return usecase.BackupJob{}, err
	}
	if hourlies < 1 {
		return usecase.BackupJob{}, fmt.Errorf("Hourlies must be >= 1")
	}
	dailies, err := scope.Uint("Dailies", 0)
	if err != nil {
		return usecase.BackupJob{}, err
	}
	weeklies, err := scope.Uint("Weeklies", 0)
	if err != nil {
		return usecase.BackupJob{}, err
	}
	monthlies, err := scope.Uint("Monthlies", 0)
	if err != nil {
		return usecase.BackupJob{}, err
	}
	mustExceed, err := scope.Duration("MustExceed", defaultMustExceed)
	if err != nil {
		return usecase.BackupJob{}, err
	}

	destList := scope.StringList("DestinationList")
	policy := usecase.DestinationPolicy{Kind: usecase.DestinationFixed, Fixed: scope.String("Destination", "")}
	if len(destList) > 0 {
		policy = usecase.DestinationPolicy{Kind: usecase.DestinationLRU, Candidates: destList, Fixed: scope.String("Destination", "")}
	}

	literal := scope.Bool("LiteralDirectory", false)
	directory := dir
	if !literal && !strings.HasSuffix(directory, "/") {
		directory += "/"
	}

	return usecase.BackupJob{
		Host:      host,
		Directory: directory,
		Excludes:  scope.StringList("Exclude"),
		Retention: usecase.RetentionPolicy{
			Hourlies:  hourlies,
			Dailies:   dailies,
			Weeklies:  weeklies,
			Monthlies: monthlies,
		},
		Destination:    policy,
		AutoTime:       scope.Bool("AutoTime", true),
		Literal:        literal,
		HourlyDirName:  scope.String("HourlyDir", ""),
		DailyDirName:   scope.String("DailyDir", ""),
		WeeklyDirName:  scope.String("WeeklyDir", ""),
		MonthlyDirName: scope.String("MonthlyDir", ""),
		MustExceed:     mustExceed,
		CreateDir:      scope.Bool("CreateDir", true),
	}, nil
}
