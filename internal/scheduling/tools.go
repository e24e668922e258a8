// Package scheduling implements the appointment tools the agent exposes to the
// generation backend: availability checks, booking, and appointment logging,
// all delegated to workflow webhooks.
package scheduling

import (
	"context"
	"time"

	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/webhook"
)

// DefaultTimeout bounds every scheduling webhook call.
const DefaultTimeout = 8 * time.Second

// Tools issues scheduling calls against the workflow webhook endpoints.
type Tools struct {
	client  *webhook.Client
	timeout time.Duration
}

// NewTools wraps a webhook client. A zero timeout selects DefaultTimeout.
func NewTools(client *webhook.Client, timeout time.Duration) *Tools {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tools{client: client, timeout: timeout}
}

// CheckAvailability asks whether the slot [startDatetime, endDatetime) is free.
func (t *Tools) CheckAvailability(ctx context.Context, startDatetime, endDatetime string) map[string]any {
	return t.client.Call(ctx, "check_availability", map[string]any{
		"action":         "check_availability",
		"start_datetime": startDatetime,
		"end_datetime":   endDatetime,
	}, t.timeout)
}

// BookAppointment books a confirmed slot with a one-line summary.
func (t *Tools) BookAppointment(ctx context.Context, startDatetime, endDatetime, summary string) map[string]any {
	return t.client.Call(ctx, "book_appointment", map[string]any{
		"action":         "book_appointment",
		"start_datetime": startDatetime,
		"end_datetime":   endDatetime,
		"summary":        summary,
	}, t.timeout)
}

// BookingDetails carries the per-patient booking variant of book_appointment.
type BookingDetails struct {
	StartDatetime string
	EndDatetime   string
	PatientName   string
	PhoneNumber   string
	BirthDate     string
	Reason        string
	Comments      string
}

// BookAppointmentDetailed books a slot with full patient fields instead of a
// summary line. Optional fields are omitted from the payload when empty.
func (t *Tools) BookAppointmentDetailed(ctx context.Context, details BookingDetails) map[string]any {
	payload := map[string]any{
		"action":         "book_appointment",
		"start_datetime": details.StartDatetime,
		"end_datetime":   details.EndDatetime,
		"patient_name":   details.PatientName,
		"phone_number":   details.PhoneNumber,
		"reason":         details.Reason,
	}
	if details.BirthDate != "" {
		payload["birth_date"] = details.BirthDate
	}
	if details.Comments != "" {
		payload["comments"] = details.Comments
	}
	return t.client.Call(ctx, "book_appointment", payload, t.timeout)
}

// AppointmentLog carries the fields of a log_appointment call.
type AppointmentLog struct {
	Event       string
	Date        string
	StartTime   string
	EndTime     string
	PatientName string
	BirthDate   string
	PhoneNumber string
	Reason      string
}

// LogAppointment records the appointment details in the backend.
func (t *Tools) LogAppointment(ctx context.Context, entry AppointmentLog) map[string]any {
	return t.client.Call(ctx, "log_appointment", map[string]any{
		"action":       "log_appointment",
		"event":        entry.Event,
		"date":         entry.Date,
		"start_time":   entry.StartTime,
		"end_time":     entry.EndTime,
		"patient_name": entry.PatientName,
		"birth_date":   entry.BirthDate,
		"phone_number": entry.PhoneNumber,
		"reason":       entry.Reason,
	}, t.timeout)
}

// Close releases the underlying webhook client.
func (t *Tools) Close() {
	t.client.Close()
}
