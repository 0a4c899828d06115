package dispatch

import (
	"fmt"
	"time"
)

// Step is one element of a command sequence.
type Step struct {
	// Data is the hex or Pronto payload. Empty for a pause-only step.
	Data string

	// SendCount is how many times Data is sent. Zero means once.
	SendCount int

	// Interval separates consecutive repeats of Data.
	Interval time.Duration

	// Pause elapses after the step's last repeat.
	Pause time.Duration

	// Timeout, on the first step only, overrides the default dispatch
	// deadline when the caller supplies none.
	Timeout time.Duration
}

// repeats returns the effective number of sends for the step.
func (s Step) repeats() int {
	if s.Data == "" {
		return 0
	}
	if s.SendCount < 1 {
		return 1
	}
	return s.SendCount
}

// Command is a single payload or a sequence of steps. Exactly one of
// Data and Sequence must be set.
type Command struct {
	Data     string
	Sequence []Step
}

// Single returns a command sending data once.
func Single(data string) Command {
	return Command{Data: data}
}

// Validate checks the command's structure.
func (c Command) Validate() error {
	switch {
	case c.Data == "" && len(c.Sequence) == 0:
		return fmt.Errorf("%w: no data or sequence", ErrInvalidCommand)
	case c.Data != "" && len(c.Sequence) > 0:
		return fmt.Errorf("%w: both data and sequence set", ErrInvalidCommand)
	}

	for i, s := range c.Sequence {
		if s.SendCount < 0 {
			return fmt.Errorf("%w: step %d: negative send count", ErrInvalidCommand, i)
		}
		if s.Interval < 0 || s.Pause < 0 || s.Timeout < 0 {
			return fmt.Errorf("%w: step %d: negative duration", ErrInvalidCommand, i)
		}
		if s.Data == "" && s.Pause == 0 {
			return fmt.Errorf("%w: step %d: no data and no pause", ErrInvalidCommand, i)
		}
	}
	return nil
}

// steps normalises the command into a sequence.
func (c Command) steps() []Step {
	if c.Data != "" {
		return []Step{{Data: c.Data, SendCount: 1}}
	}
	return c.Sequence
}

// PlannedSends returns the number of sends the command issues when
// nothing times out.
func (c Command) PlannedSends() int {
	n := 0
	for _, s := range c.steps() {
		n += s.repeats()
	}
	return n
}

// Outcome is the result of one dispatch. It is never mutated after
// Dispatch returns.
type Outcome struct {
	// Attempted counts sends issued, including ones whose payload failed
	// to decode.
	Attempted int `json:"attempted"`

	// Failed counts failed sends. -1 means no device resolved and only a
	// best-effort send was made.
	Failed int `json:"failed"`

	// TimedOut is set when the deadline cut the sequence short.
	TimedOut bool `json:"timed_out"`

	// Canceled is set when the caller's context ended the dispatch.
	Canceled bool `json:"canceled,omitempty"`
}

// Succeeded reports whether every attempted send landed and the command
// ran to completion.
func (o Outcome) Succeeded() bool {
	return o.Failed == 0 && !o.TimedOut && !o.Canceled && o.Attempted > 0
}

// notFoundOutcome is returned when no device resolves.
var notFoundOutcome = Outcome{Attempted: 0, Failed: -1}
