package agent

import "strings"

// SpeechQueue orders utterances for the engine and keeps at most one
// response in flight. It is owned by the session loop and not safe for
// concurrent use.
type SpeechQueue struct {
	items   []string
	current string
	active  bool
	cooling bool
	ready   bool
}

// Enqueue appends a non-empty utterance. It reports whether text was queued.
func (q *SpeechQueue) Enqueue(text string) bool {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return false
	}
	q.items = append(q.items, text)
	return true
}

// TryDequeue pops the head when the engine is ready, nothing is in flight
// and the quiet interval has passed. The caller must send exactly one
// response for a returned utterance.
func (q *SpeechQueue) TryDequeue() (string, bool) {
	if !q.ready || q.active || q.cooling || len(q.items) == 0 {
		return "", false
	}
	text := q.items[0]
	q.items = q.items[1:]
	q.current = text
	q.active = true
	return text, true
}

// Complete clears the in-flight response and starts the quiet interval.
func (q *SpeechQueue) Complete() {
	q.active = false
	q.current = ""
	q.cooling = true
}

// Conflict handles an engine rejection of the in-flight request: the
// utterance goes back to the head of the queue and the queue waits before
// retrying.
func (q *SpeechQueue) Conflict() {
	if q.active && q.current != "" {
		q.items = append([]string{q.current}, q.items...)
	}
	q.active = false
	q.current = ""
	q.cooling = true
}

// Resume ends the quiet interval.
func (q *SpeechQueue) Resume() { q.cooling = false }

// SetReady marks the engine as configured.
func (q *SpeechQueue) SetReady() { q.ready = true }

func (q *SpeechQueue) Active() bool { return q.active }
func (q *SpeechQueue) Len() int     { return len(q.items) }

// Idle reports that nothing is queued or in flight.
func (q *SpeechQueue) Idle() bool { return !q.active && len(q.items) == 0 }
