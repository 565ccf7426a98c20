// Package ratelimit recognises agent-reported throttling messages and computes
// how long the loop must back off before retrying.
package ratelimit

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FallbackWait is how long the loop waits when a rate-limit message is
// detected but no reset time can be parsed out of it.
const FallbackWait = time.Hour

// DefaultPatterns match the known rate-limit message format from the agent
// CLI, e.g. "You've hit your limit · resets 5am (America/Asuncion)". Each
// pattern requires both the limit marker and the reset clause so that
// ordinary prose mentioning "limit" does not trip the detector.
var DefaultPatterns = []string{
	`(?i)hit your limit .* resets \d{1,2}(am|pm)`,
}

var resetRe = regexp.MustCompile(`(?i)resets\s+(\d{1,2})(am|pm)\s*\(([^)]+)\)`)

// Detector classifies agent output as a rate-limit condition. The pattern set
// is configurable because the agent vendor may change its message wording;
// a missed pattern silently downgrades a throttled iteration to a generic
// failure, so operators can extend the set from config.
type Detector struct {
	patterns []*regexp.Regexp
}

// NewDetector compiles the given patterns. With no arguments it uses
// DefaultPatterns.
func NewDetector(patterns ...string) (*Detector, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	d := &Detector{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile rate-limit pattern %q: %w", p, err)
		}
		d.patterns = append(d.patterns, re)
	}
	return d, nil
}

// Detect reports whether the text contains a rate-limit message.
func (d *Detector) Detect(text string) bool {
	for _, re := range d.patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// ParseReset extracts the reset time from a fragment like
// "resets 5am (America/Asuncion)". The hour is interpreted in the named zone;
// if that time of day has already passed it rolls to tomorrow. Returns false
// when no reset clause is found or the zone name is unknown.
func ParseReset(text string, now time.Time) (time.Time, bool) {
	m := resetRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil || hour < 1 || hour > 12 {
		return time.Time{}, false
	}
	switch strings.ToLower(m[2]) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}

	loc, err := time.LoadLocation(m[3])
	if err != nil {
		return time.Time{}, false
	}

	local := now.In(loc)
	reset := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !reset.After(local) {
		reset = reset.AddDate(0, 0, 1)
	}
	return reset, true
}

// Wait blocks until the reset time, calling progress at most every five
// minutes with the remaining duration. It returns immediately when the reset
// time is already past, and ctx.Err() if cancelled.
func Wait(ctx context.Context, reset time.Time, progress func(remaining time.Duration)) error {
	for {
		remaining := time.Until(reset)
		if remaining <= 0 {
			return nil
		}
		if progress != nil {
			progress(remaining)
		}
		chunk := remaining
		if chunk > 5*time.Minute {
			chunk = 5 * time.Minute
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(chunk):
		}
	}
}
