package store

import "time"

// Mirror ids recorded for attempts that did not go through a mirror.
const (
	RouteProxy  = "proxy"
	RouteDirect = "direct"
)

// Attempt records one external attempt (a git invocation or an archive
// fetch) made while serving a command.
type Attempt struct {
	ID         int64
	Operation  string // "clone", "pull", "push", "fetch", "download"
	Reference  string // canonical repository URL
	MirrorID   string // registry id, RouteProxy or RouteDirect
	TargetURL  string
	Success    bool
	ExitCode   int
	StartTime  time.Time
	DurationMS int64
}

// MirrorStat aggregates attempts per mirror.
type MirrorStat struct {
	MirrorID      string
	Attempts      int
	Successes     int
	AvgDurationMS float64 // successful attempts only
	LastSuccess   time.Time
}
