// Package retry wraps remote calls with transient-failure
// classification and exponential backoff.
//
// Classification is explicit: Classify inspects a failure's diagnostic
// text and returns a tagged result, and the backoff loop consumes that
// result. Callers never string-match error messages themselves.
package retry

import (
	"log"
	"math/rand"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Defaults for Policy zero values.
const (
	DefaultMaxAttempts = 3
	DefaultBase        = 2 * time.Second

	// jitterSpan is the width of the uniform jitter added to each
	// computed backoff sleep.
	jitterSpan = 250 * time.Millisecond
)

// transientMarkers are the diagnostic-text fragments that mark a
// failure as retryable. Everything else is permanent.
var transientMarkers = []string{
	"rate limit",
	"secondary rate limit",
	"abuse detection",
	"was submitted too quickly",
	"connection reset",
	"timeout",
	"temporarily unavailable",
	"http 429",
	"http 502",
	"http 503",
}

// Wait-hint forms the remote service embeds in failure text. An
// explicit hint always wins over computed backoff.
var hintPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)retry-after:?\s*(\d+)`),
	regexp.MustCompile(`(?i)wait\s+(\d+)\s+seconds`),
}

// Classification is the tagged result of inspecting a failure.
type Classification struct {
	// Transient reports whether the failure is worth retrying.
	Transient bool

	// Hint is the server-suggested wait, valid only when HasHint.
	Hint    time.Duration
	HasHint bool
}

// Classify decides whether err is a transient remote failure and
// extracts any explicit wait hint from its text.
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}
	text := strings.ToLower(err.Error())

	var c Classification
	for _, marker := range transientMarkers {
		if strings.Contains(text, marker) {
			c.Transient = true
			break
		}
	}
	if !c.Transient {
		return c
	}

	for _, re := range hintPatterns {
		if m := re.FindStringSubmatch(err.Error()); m != nil {
			if secs, err := strconv.Atoi(m[1]); err == nil {
				c.Hint = time.Duration(secs) * time.Second
				c.HasHint = true
				break
			}
		}
	}
	return c
}

// Policy controls the retry loop. The zero value retries transient
// failures up to DefaultMaxAttempts times with DefaultBase backoff,
// sleeping for real and using math/rand jitter. Sleep and Jitter are
// injectable so tests run without waiting.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// Base is the first computed backoff; it doubles per attempt.
	Base time.Duration

	// MaxSleep caps the computed backoff when positive. Explicit
	// server hints are not capped.
	MaxSleep time.Duration

	// Sleep performs the wait; nil means time.Sleep.
	Sleep func(time.Duration)

	// Jitter returns a value in [0, 1); nil means math/rand.
	Jitter func() float64

	// Logger records retries; nil means a stderr default.
	Logger *log.Logger
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.Base <= 0 {
		p.Base = DefaultBase
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	if p.Jitter == nil {
		p.Jitter = rand.Float64
	}
	if p.Logger == nil {
		p.Logger = log.New(os.Stderr, "[retry] ", log.LstdFlags)
	}
	return p
}

// Do invokes fn, retrying transient failures per the policy. Permanent
// failures propagate immediately; exhausting the attempt budget
// propagates the last failure. op names the operation in log lines.
func (p Policy) Do(op string, fn func() error) error {
	p = p.withDefaults()

	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		c := Classify(err)
		if !c.Transient {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		sleep := p.backoff(attempt, c)
		p.Logger.Printf("transient failure on %s (attempt %d/%d), retrying in %v: %v",
			op, attempt, p.MaxAttempts, sleep.Round(time.Millisecond), err)
		p.Sleep(sleep)
	}
	return err
}

// backoff picks the wait before the next attempt: the server's
// explicit hint when present, otherwise base * 2^(attempt-1) plus
// uniform jitter, capped by MaxSleep.
func (p Policy) backoff(attempt int, c Classification) time.Duration {
	if c.HasHint {
		return c.Hint
	}
	sleep := p.Base << (attempt - 1)
	sleep += time.Duration(p.Jitter() * float64(jitterSpan))
	if p.MaxSleep > 0 && sleep > p.MaxSleep {
		sleep = p.MaxSleep
	}
	return sleep
}
