package proctor

import (
	"sync"
	"time"
)

// SignalKind names a browser attention signal.
type SignalKind string

const (
	SignalVisibilityHidden  SignalKind = "visibility_hidden"
	SignalFocusLost         SignalKind = "focus_lost"
	SignalAttentionRestored SignalKind = "attention_restored"
	SignalUnload            SignalKind = "unload"
)

// NoticeKind classifies a message for the test taker.
type NoticeKind string

const (
	NoticeWarning    NoticeKind = "warning"
	NoticeTerminated NoticeKind = "terminated"
	NoticeAdvisory   NoticeKind = "advisory"
)

// DefaultViolationThreshold is the violation count that terminates an attempt.
const DefaultViolationThreshold = 2

const noticeBufferSize = 8

// Notice is delivered on the monitor's notice channel. Nothing waits for it to be read.
type Notice struct {
	Kind       NoticeKind
	Violations int
	Message    string
	At         time.Time
}

// IntegrityMonitor counts attention-loss violations while an attempt is in progress.
//
// One away episode starts with the first hidden or focus-lost signal and ends with
// SignalAttentionRestored. Within an episode the first signal of each other kind is
// the same departure reported twice by the browser and is not counted again; a
// repeat of an already seen kind is a new departure and is counted.
type IntegrityMonitor struct {
	mu          sync.Mutex
	threshold   int
	active      bool
	terminated  bool
	violations  int
	awayKinds   map[SignalKind]bool
	notices     chan Notice
	clock       Clock
	onTerminate func()
	expired     func() bool
}

// NewIntegrityMonitor builds an inactive monitor. onTerminate runs, outside the
// monitor's lock, once the threshold is reached.
func NewIntegrityMonitor(threshold int, clock Clock, onTerminate func()) *IntegrityMonitor {
	if threshold <= 0 {
		threshold = DefaultViolationThreshold
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &IntegrityMonitor{
		threshold:   threshold,
		awayKinds:   make(map[SignalKind]bool),
		notices:     make(chan Notice, noticeBufferSize),
		clock:       clock,
		onTerminate: onTerminate,
	}
}

// Notices streams warnings, advisories and the termination notice.
func (m *IntegrityMonitor) Notices() <-chan Notice {
	return m.notices
}

// Violations returns the monotonic violation count.
func (m *IntegrityMonitor) Violations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.violations
}

// Terminated reports whether the threshold was reached.
func (m *IntegrityMonitor) Terminated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminated
}

func (m *IntegrityMonitor) activate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.terminated {
		m.active = true
	}
}

// onExpired installs the deadline check Observe consults before counting. It
// runs outside the monitor's lock.
func (m *IntegrityMonitor) onExpired(fn func() bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired = fn
}

func (m *IntegrityMonitor) deactivate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	m.awayKinds = make(map[SignalKind]bool)
}

// Observe feeds one browser signal to the monitor. Signals outside an active
// attempt, or after its deadline has passed, are ignored.
func (m *IntegrityMonitor) Observe(kind SignalKind) {
	m.mu.Lock()
	expired := m.expired
	m.mu.Unlock()
	if expired != nil && expired() {
		return
	}

	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}

	now := m.clock.Now()
	switch kind {
	case SignalUnload:
		m.notify(Notice{Kind: NoticeAdvisory, Violations: m.violations, Message: "Leaving this page does not stop the timer.", At: now})
		m.mu.Unlock()
		return
	case SignalAttentionRestored:
		m.awayKinds = make(map[SignalKind]bool)
		m.mu.Unlock()
		return
	case SignalVisibilityHidden, SignalFocusLost:
	default:
		m.mu.Unlock()
		return
	}

	if len(m.awayKinds) > 0 && !m.awayKinds[kind] {
		m.awayKinds[kind] = true
		m.mu.Unlock()
		return
	}
	m.awayKinds = map[SignalKind]bool{kind: true}

	m.violations++
	integrityViolations.Inc()

	if m.violations < m.threshold {
		m.notify(Notice{Kind: NoticeWarning, Violations: m.violations, Message: "Switching away from the assessment is a violation. Further violations will end your attempt.", At: now})
		m.mu.Unlock()
		return
	}

	m.terminated = true
	m.active = false
	m.notify(Notice{Kind: NoticeTerminated, Violations: m.violations, Message: "Your attempt was ended after repeated violations and recorded as failed.", At: now})
	onTerminate := m.onTerminate
	m.mu.Unlock()

	if onTerminate != nil {
		onTerminate()
	}
}

// notify must be called with m.mu held.
func (m *IntegrityMonitor) notify(notice Notice) {
	select {
	case m.notices <- notice:
	default:
		noticesDropped.Inc()
	}
}

// markTerminated restores a termination recorded in a checkpoint.
func (m *IntegrityMonitor) markTerminated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = true
	m.active = false
	if m.violations < m.threshold {
		m.violations = m.threshold
	}
}
