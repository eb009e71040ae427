// Package schedule decides when a scheduled download is due.
//
// Expressions have the form "<type>[:<params>]":
//
//	hourly[:N]       every N hours (default 1)
//	daily[:N]        every N days (default 1)
//	weekly[:<day>]   on the next <day> after the last run (default monday)
//	monthly[:<d>]    on day d of the month after the last run (default 1)
//	cron[:<expr>]    standard 5-field, or 6-field with seconds (default "0 0 * * *")
//
// Every evaluation fails open: an expression that cannot be understood means "run".
package schedule

import (
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"jassist-go/internal/jassist"
)

// DefaultCron is used for a bare "cron" expression.
const DefaultCron = "0 0 * * *"

var weekdays = map[string]int{
	"monday":    0,
	"tuesday":   1,
	"wednesday": 2,
	"thursday":  3,
	"friday":    4,
	"saturday":  5,
	"sunday":    6,
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Evaluator answers schedule questions relative to its clock.
type Evaluator struct {
	clock  jassist.Clock
	logger jassist.Logger
}

// NewEvaluator returns an Evaluator. A nil logger is replaced with NopLogger.
func NewEvaluator(clock jassist.Clock, logger jassist.Logger) *Evaluator {
	if logger == nil {
		logger = jassist.NewNopLogger()
	}
	return &Evaluator{clock: clock, logger: logger}
}

// ShouldRunNow reports whether a run is due. An empty expression or a nil
// lastRun always runs.
func (e *Evaluator) ShouldRunNow(expr string, lastRun *time.Time) bool {
	if strings.TrimSpace(expr) == "" || lastRun == nil {
		return true
	}

	next, ok := e.next(expr, *lastRun)
	if !ok {
		return true
	}
	return !e.clock.Now().Before(next)
}

// CalculateNextRun returns nil without an expression, now without a last run,
// and otherwise the next occurrence after lastRun. Unparseable expressions yield nil.
func (e *Evaluator) CalculateNextRun(expr string, lastRun *time.Time) *time.Time {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	if lastRun == nil {
		now := e.clock.Now()
		return &now
	}
	next, ok := e.next(expr, *lastRun)
	if !ok {
		return nil
	}
	return &next
}

func (e *Evaluator) next(expr string, last time.Time) (time.Time, bool) {
	kind, params := split(expr)

	switch kind {
	case "hourly":
		return last.Add(time.Duration(e.interval(kind, params)) * time.Hour), true
	case "daily":
		return last.AddDate(0, 0, e.interval(kind, params)), true
	case "weekly":
		return nextWeekly(params, last), true
	case "monthly":
		return nextMonthly(params, last), true
	case "cron":
		if params == "" {
			params = DefaultCron
		}
		sched, err := cronParser.Parse(params)
		if err != nil {
			e.logger.Warn("invalid cron expression, running anyway", "expr", params, "error", err)
			return time.Time{}, false
		}
		next := sched.Next(last)
		if next.IsZero() {
			return time.Time{}, false
		}
		return next, true
	default:
		e.logger.Warn("unknown schedule type, running anyway", "type", kind)
		return time.Time{}, false
	}
}

// interval parses the N of hourly/daily. Missing or invalid values mean 1.
func (e *Evaluator) interval(kind, params string) int {
	if params == "" {
		return 1
	}
	n, err := strconv.Atoi(params)
	if err != nil || n < 1 {
		e.logger.Warn("invalid schedule interval, using 1", "type", kind, "value", params)
		return 1
	}
	return n
}

func split(expr string) (kind, params string) {
	kind, params, _ = strings.Cut(expr, ":")
	return strings.ToLower(strings.TrimSpace(kind)), strings.TrimSpace(params)
}

// mondayIndex converts Go's Sunday-based weekday to Monday=0.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func nextWeekly(params string, last time.Time) time.Time {
	target := 0
	if params != "" {
		if d, ok := weekdays[strings.ToLower(params)]; ok {
			target = d
		}
	}
	days := ((target-mondayIndex(last.Weekday()))%7 + 7) % 7
	if days == 0 {
		days = 7
	}
	return last.AddDate(0, 0, days)
}

func nextMonthly(params string, last time.Time) time.Time {
	target := 1
	if params != "" {
		if d, err := strconv.Atoi(params); err == nil {
			target = max(1, min(31, d))
		}
	}

	// Day 1 of the following month keeps time.Date from spilling over.
	first := time.Date(last.Year(), last.Month()+1, 1,
		last.Hour(), last.Minute(), last.Second(), last.Nanosecond(), last.Location())
	day := min(target, daysIn(first.Year(), first.Month(), last.Location()))
	return first.AddDate(0, 0, day-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
