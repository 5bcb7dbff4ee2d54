// Package dialogue implements the intake conversation as a pure transition
// function. The session owns a Snapshot and feeds each caller transcript
// through Step; the result carries the next snapshot plus the utterances to
// queue for speech.
package dialogue

import "github.com/chadiek/call-intake/internal/extract"

// State is a step of the intake conversation.
type State int

const (
	AskConsent State = iota
	AskName
	ConfirmName
	AskNameCorrection
	ConfirmCallerLast4
	AskPhone
	ConfirmPhone
	Done

	numStates
)

func (s State) String() string {
	switch s {
	case AskConsent:
		return "ask_consent"
	case AskName:
		return "ask_name"
	case ConfirmName:
		return "confirm_name"
	case AskNameCorrection:
		return "ask_name_correction"
	case ConfirmCallerLast4:
		return "confirm_caller_last4"
	case AskPhone:
		return "ask_phone"
	case ConfirmPhone:
		return "confirm_phone"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Terminal reasons produced by the dialogue.
const (
	ReasonCompleted    = "completed"
	ReasonConsentNo    = "consent_no"
	ReasonDeclined     = "declined"
	ReasonInvalidPhone = "invalid_phone"
	ReasonNotConfirmed = "not_confirmed"
)

// Consent values recorded on the lead.
const (
	ConsentYes = "yes"
	ConsentNo  = "no"
)

// maxRetries is how many times a state re-asks before falling back.
const maxRetries = 1

// Lead holds committed (confirmed) values only.
type Lead struct {
	FirstName   string
	LastName    string
	PhoneNumber string
	StudyTrack  string
}

// Pending holds candidates awaiting confirmation.
type Pending struct {
	Name  extract.Name
	Phone string
}

// Snapshot is the complete dialogue state of one call.
type Snapshot struct {
	State   State
	Pending Pending
	Retries [numStates]int
	Lead    Lead
	Consent string
	// CallerLocal is the caller id in local form, "" when unknown.
	CallerLocal string
}

// Result is the outcome of one Step.
type Result struct {
	Snapshot Snapshot
	Say      []string
	Done     bool
	Reason   string
}

// Start returns the initial snapshot for a call.
func Start(callerLocal, studyTrack string) Snapshot {
	if !extract.IsValidLocalPhone(callerLocal) {
		callerLocal = ""
	}
	return Snapshot{
		State:       AskConsent,
		CallerLocal: callerLocal,
		Lead:        Lead{StudyTrack: studyTrack},
	}
}

// Opening returns the utterances spoken when the engine becomes ready.
func Opening(s Snapshot) []string {
	return []string{promptGreeting, Prompt(s)}
}

// Prompt returns the question of the current step, or "" once done.
func Prompt(s Snapshot) string {
	switch s.State {
	case AskConsent:
		return promptConsent
	case AskName:
		return promptAskName
	case ConfirmName:
		return promptConfirmName(s.Pending.Name)
	case AskNameCorrection:
		return promptNameCorrection
	case ConfirmCallerLast4:
		return promptConfirmCallerLast4(s.CallerLocal)
	case AskPhone:
		return promptAskPhone
	case ConfirmPhone:
		return promptConfirmPhone(s.Pending.Phone)
	}
	return ""
}

// Step advances the dialogue with one caller transcript. Input received in
// Done is ignored.
func Step(s Snapshot, text string, ex extract.Extractor) Result {
	if s.State == Done {
		return Result{Snapshot: s, Done: true}
	}
	if ex.DetectRefusal(text) {
		return s.end(ReasonDeclined, promptFarewellDecline)
	}

	switch s.State {
	case AskConsent:
		switch ex.DetectYesNo(text) {
		case extract.Yes:
			s.Consent = ConsentYes
			return s.to(AskName, promptConsentGranted+" "+promptAskName)
		case extract.No:
			s.Consent = ConsentNo
			return s.end(ReasonConsentNo, promptFarewellNo)
		}
		if s.retry() {
			return s.stay(promptConsentRetry)
		}
		return s.end(ReasonDeclined, promptFarewellDecline)

	case AskName:
		if n, ok := ex.ParseName(text); ok {
			s.Pending.Name = n
			return s.to(ConfirmName, promptConfirmName(n))
		}
		if s.retry() {
			return s.stay(promptAskNameRetry)
		}
		return s.afterName()

	case ConfirmName:
		switch ex.DetectYesNo(text) {
		case extract.Yes:
			s.Lead.FirstName = s.Pending.Name.First
			s.Lead.LastName = s.Pending.Name.Last
			s.Pending.Name = extract.Name{}
			return s.afterName()
		case extract.No:
			// "no, it's Dana Levi"
			if n, ok := ex.ParseName(text); ok {
				s.Pending.Name = n
				return s.stay(promptConfirmName(n))
			}
			if s.retry() {
				return s.to(AskNameCorrection, promptNameCorrection)
			}
			s.Pending.Name = extract.Name{}
			return s.afterName()
		}
		if n, ok := ex.ParseName(text); ok {
			s.Pending.Name = n
			return s.stay(promptConfirmName(n))
		}
		return s.stay(promptYesNoOnly + " " + promptConfirmName(s.Pending.Name))

	case AskNameCorrection:
		if n, ok := ex.ParseName(text); ok {
			s.Pending.Name = n
			return s.to(ConfirmName, promptConfirmName(n))
		}
		return s.stay(promptNameCorrection)

	case ConfirmCallerLast4:
		if p := ex.ExtractPhone(text); p != "" {
			s.Pending.Phone = p
			return s.to(ConfirmPhone, promptConfirmPhone(p))
		}
		switch ex.DetectYesNo(text) {
		case extract.Yes:
			s.Lead.PhoneNumber = s.CallerLocal
			return s.end(ReasonCompleted, promptFarewellDone)
		case extract.No:
			return s.to(AskPhone, promptAskPhone)
		}
		return s.stay(promptYesNoOnly + " " + promptConfirmCallerLast4(s.CallerLocal))

	case AskPhone:
		if p := ex.ExtractPhone(text); p != "" {
			s.Pending.Phone = p
			return s.to(ConfirmPhone, promptConfirmPhone(p))
		}
		if s.retry() {
			return s.stay(promptAskPhoneRetry)
		}
		return s.end(ReasonInvalidPhone, promptFarewellPhone)

	case ConfirmPhone:
		if p := ex.ExtractPhone(text); p != "" && p != s.Pending.Phone {
			s.Pending.Phone = p
			return s.stay(promptConfirmPhone(p))
		}
		switch ex.DetectYesNo(text) {
		case extract.Yes:
			s.Lead.PhoneNumber = s.Pending.Phone
			s.Pending.Phone = ""
			return s.end(ReasonCompleted, promptFarewellDone)
		case extract.No:
			s.Pending.Phone = ""
			if s.retry() {
				return s.to(AskPhone, promptAskPhone)
			}
			return s.end(ReasonNotConfirmed, promptFarewellUnconf)
		}
		return s.stay(promptYesNoOnly + " " + promptConfirmPhone(s.Pending.Phone))
	}
	return Result{Snapshot: s}
}

// retry consumes one retry of the current state.
func (s *Snapshot) retry() bool {
	if s.Retries[s.State] >= maxRetries {
		return false
	}
	s.Retries[s.State]++
	return true
}

// afterName moves to the phone step, preferring the caller id when known.
func (s Snapshot) afterName() Result {
	if s.CallerLocal != "" {
		return s.to(ConfirmCallerLast4, promptConfirmCallerLast4(s.CallerLocal))
	}
	return s.to(AskPhone, promptAskPhone)
}

func (s Snapshot) to(next State, say ...string) Result {
	s.State = next
	return Result{Snapshot: s, Say: say}
}

func (s Snapshot) stay(say ...string) Result {
	return Result{Snapshot: s, Say: say}
}

func (s Snapshot) end(reason string, farewell string) Result {
	s.State = Done
	s.Pending = Pending{}
	return Result{Snapshot: s, Say: []string{farewell}, Done: true, Reason: reason}
}
