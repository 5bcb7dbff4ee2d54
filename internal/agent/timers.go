package agent

import "time"

type timerKind int

const (
	timerIdleWarning timerKind = iota
	timerIdleHangup
	timerMaxCallWarning
	timerMaxCallHangup
	timerTerminationGrace
	// timerResume ends a speech quiet interval or a conflict back-off.
	timerResume

	numTimerKinds
)

func (k timerKind) String() string {
	switch k {
	case timerIdleWarning:
		return "idle_warning"
	case timerIdleHangup:
		return "idle_hangup"
	case timerMaxCallWarning:
		return "max_call_warning"
	case timerMaxCallHangup:
		return "max_call_hangup"
	case timerTerminationGrace:
		return "termination_grace"
	case timerResume:
		return "resume"
	}
	return "unknown"
}

// timerFired is posted to the session loop when a timer expires.
type timerFired struct {
	kind timerKind
	gen  uint64
}

// TimerConfig holds the per-call durations. A zero duration disables the
// timer.
type TimerConfig struct {
	IdleWarning        time.Duration
	IdleHangup         time.Duration
	MaxCall            time.Duration
	MaxCallWarningLead time.Duration
	TerminationGrace   time.Duration
}

// TimerController owns the session timers. Expiries are delivered through
// post and tagged with a generation; a fired event is only acted on while it
// is Current. Methods are called from the session loop only.
type TimerController struct {
	cfg       TimerConfig
	post      func(timerFired)
	handles   [numTimerKinds]*time.Timer
	gens      [numTimerKinds]uint64
	cancelled bool
}

func newTimerController(cfg TimerConfig, post func(timerFired)) *TimerController {
	return &TimerController{cfg: cfg, post: post}
}

func (tc *TimerController) arm(kind timerKind, d time.Duration) {
	if tc.cancelled || d <= 0 {
		return
	}
	tc.stop(kind)
	tc.gens[kind]++
	gen := tc.gens[kind]
	tc.handles[kind] = time.AfterFunc(d, func() { tc.post(timerFired{kind: kind, gen: gen}) })
}

func (tc *TimerController) stop(kind timerKind) {
	if h := tc.handles[kind]; h != nil {
		h.Stop()
		tc.handles[kind] = nil
	}
	tc.gens[kind]++
}

// ArmIdle (re)starts the idle warning and idle hangup timers.
func (tc *TimerController) ArmIdle() {
	tc.arm(timerIdleWarning, tc.cfg.IdleWarning)
	tc.arm(timerIdleHangup, tc.cfg.IdleHangup)
}

// ArmMaxCall starts the call length timers. Called once per call.
func (tc *TimerController) ArmMaxCall() {
	if tc.cfg.MaxCall <= 0 {
		return
	}
	if lead := tc.cfg.MaxCallWarningLead; lead > 0 && lead < tc.cfg.MaxCall {
		tc.arm(timerMaxCallWarning, tc.cfg.MaxCall-lead)
	}
	tc.arm(timerMaxCallHangup, tc.cfg.MaxCall)
}

// ArmTerminationGrace bounds how long a farewell may take to play out.
func (tc *TimerController) ArmTerminationGrace() {
	tc.arm(timerTerminationGrace, tc.cfg.TerminationGrace)
}

// ResumeAfter schedules the end of a speech pause.
func (tc *TimerController) ResumeAfter(d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	tc.arm(timerResume, d)
}

// StopIdle disarms both idle timers.
func (tc *TimerController) StopIdle() {
	tc.stop(timerIdleWarning)
	tc.stop(timerIdleHangup)
}

// Current reports whether ev belongs to the latest arming of its timer.
func (tc *TimerController) Current(ev timerFired) bool {
	return !tc.cancelled && ev.kind >= 0 && ev.kind < numTimerKinds && tc.gens[ev.kind] == ev.gen
}

// CancelAll stops every timer and rejects future arming.
func (tc *TimerController) CancelAll() {
	for k := timerKind(0); k < numTimerKinds; k++ {
		tc.stop(k)
	}
	tc.cancelled = true
}
