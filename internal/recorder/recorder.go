// Package recorder accumulates the live transcript of a single call along with
// the patient and appointment details collected by tool calls. One Recorder is
// created per call and read once at call end.
package recorder

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is a single utterance. Immutable once appended.
type Turn struct {
	Role      Role
	Text      string
	Timestamp string // ISO-8601, local creation time
}

// Recorder records a conversation transcript in real time. It assumes the
// single-threaded event-loop model of the surrounding session and takes no locks.
type Recorder struct {
	agentName string
	turns     []Turn

	patientName     string
	phoneNumber     string
	birthDate       string
	reason          string
	appointmentDate string
	appointmentTime string
}

// New returns a Recorder for one call, attributed to the given voice agent.
func New(agentName string) *Recorder {
	return &Recorder{agentName: agentName}
}

// AgentName returns the voice agent name set at construction.
func (r *Recorder) AgentName() string { return r.agentName }

// AddUserMessage appends a user turn with the current timestamp.
func (r *Recorder) AddUserMessage(text string) {
	r.append(RoleUser, text)
	log.Info().Str("role", "user").Str("text", text).Msg("transcript turn")
}

// AddAgentMessage appends an agent turn with the current timestamp.
func (r *Recorder) AddAgentMessage(text string) {
	r.append(RoleAgent, text)
	log.Info().Str("role", "agent").Str("text", text).Msg("transcript turn")
}

func (r *Recorder) append(role Role, text string) {
	r.turns = append(r.turns, Turn{
		Role:      role,
		Text:      text,
		Timestamp: time.Now().Format("2006-01-02T15:04:05.000000"),
	})
}

// PatientInfo is a partial update; only non-empty fields overwrite state.
type PatientInfo struct {
	PatientName string
	PhoneNumber string
	BirthDate   string
	Reason      string
}

// SetPatientInfo updates patient details as they are collected during the call.
// Empty fields leave existing values untouched; nothing is ever cleared.
func (r *Recorder) SetPatientInfo(info PatientInfo) {
	if info.PatientName != "" {
		r.patientName = info.PatientName
	}
	if info.PhoneNumber != "" {
		r.phoneNumber = info.PhoneNumber
	}
	if info.BirthDate != "" {
		r.birthDate = info.BirthDate
	}
	if info.Reason != "" {
		r.reason = info.Reason
	}
	log.Debug().
		Str("patient", r.patientName).
		Str("phone", r.phoneNumber).
		Msg("patient info updated")
}

// AppointmentInfo is a partial update; only non-empty fields overwrite state.
type AppointmentInfo struct {
	Date string
	Time string
}

// SetAppointmentInfo updates appointment details when a booking is confirmed.
func (r *Recorder) SetAppointmentInfo(info AppointmentInfo) {
	if info.Date != "" {
		r.appointmentDate = info.Date
	}
	if info.Time != "" {
		r.appointmentTime = info.Time
	}
	log.Debug().
		Str("date", r.appointmentDate).
		Str("time", r.appointmentTime).
		Msg("appointment info updated")
}

// PatientName returns the last recorded patient name, or "".
func (r *Recorder) PatientName() string { return r.patientName }

// PhoneNumber returns the last recorded phone number, or "".
func (r *Recorder) PhoneNumber() string { return r.phoneNumber }

// BirthDate returns the last recorded birth date, or "".
func (r *Recorder) BirthDate() string { return r.birthDate }

// Reason returns the last recorded visit reason, or "".
func (r *Recorder) Reason() string { return r.reason }

// AppointmentDate returns the confirmed appointment date, or "".
func (r *Recorder) AppointmentDate() string { return r.appointmentDate }

// AppointmentTime returns the confirmed appointment time, or "".
func (r *Recorder) AppointmentTime() string { return r.appointmentTime }

// Turns returns the recorded turns in insertion order.
func (r *Recorder) Turns() []Turn { return r.turns }

// FullTranscript returns the transcript as newline-joined lines of the form
//
//	[2025-10-30T14:23:45] USER: Bonjour...
//	[2025-10-30T14:23:47] AGENT: Bonjour, cabinet du docteur Fillion...
//
// Sub-second precision is trimmed. Empty when no turns exist.
func (r *Recorder) FullTranscript() string {
	lines := make([]string, 0, len(r.turns))
	for _, turn := range r.turns {
		ts := turn.Timestamp
		if len(ts) > 19 {
			ts = ts[:19]
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", ts, strings.ToUpper(string(turn.Role)), turn.Text))
	}
	return strings.Join(lines, "\n")
}

// TurnCount returns the total number of turns, both roles included.
func (r *Recorder) TurnCount() int { return len(r.turns) }

// UserTurnCount returns the number of user turns.
func (r *Recorder) UserTurnCount() int { return r.countRole(RoleUser) }

// AgentTurnCount returns the number of agent turns.
func (r *Recorder) AgentTurnCount() int { return r.countRole(RoleAgent) }

func (r *Recorder) countRole(role Role) int {
	n := 0
	for _, t := range r.turns {
		if t.Role == role {
			n++
		}
	}
	return n
}

// Summary returns a one-line digest of the conversation state.
func (r *Recorder) Summary() string {
	patient := r.patientName
	if patient == "" {
		patient = "unknown"
	}
	appointment := r.appointmentDate
	if appointment == "" {
		appointment = "not set"
	}
	return fmt.Sprintf("Turns: %d (user: %d, agent: %d), Patient: %s, Appointment: %s",
		len(r.turns), r.UserTurnCount(), r.AgentTurnCount(), patient, appointment)
}
