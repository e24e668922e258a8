package scheduling

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/Fr3nn3r/VoiceAgentBuilder/internal/recorder"
)

// Handler executes one tool call with the raw arguments supplied by the
// generation backend. Failures are reported in the returned map; a handler
// never panics and never returns a Go error.
type Handler func(ctx context.Context, args map[string]any) map[string]any

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func requireArgs(args map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if stringArg(args, key) == "" {
			return map[string]any{"error": fmt.Sprintf("missing required field: %s", key)}
		}
	}
	return nil
}

// NewCheckAvailabilityHandler returns the handler for check_availability calls.
// The backend only consumes the boolean, so the response is narrowed to it.
func NewCheckAvailabilityHandler(tools *Tools) Handler {
	return func(ctx context.Context, args map[string]any) map[string]any {
		log.Info().Interface("args", args).Msg("tool check_availability")
		if errMap := requireArgs(args, "start_datetime", "end_datetime"); errMap != nil {
			return errMap
		}
		result := tools.CheckAvailability(ctx, stringArg(args, "start_datetime"), stringArg(args, "end_datetime"))
		available, _ := result["available"].(bool)
		return map[string]any{"available": available}
	}
}

// NewBookAppointmentHandler returns the handler for book_appointment calls.
// The webhook response is passed through unchanged.
func NewBookAppointmentHandler(tools *Tools) Handler {
	return func(ctx context.Context, args map[string]any) map[string]any {
		log.Info().Interface("args", args).Msg("tool book_appointment")
		if errMap := requireArgs(args, "start_datetime", "end_datetime", "patient_name", "phone_number", "reason"); errMap != nil {
			return errMap
		}
		return tools.BookAppointmentDetailed(ctx, BookingDetails{
			StartDatetime: stringArg(args, "start_datetime"),
			EndDatetime:   stringArg(args, "end_datetime"),
			PatientName:   stringArg(args, "patient_name"),
			PhoneNumber:   stringArg(args, "phone_number"),
			BirthDate:     stringArg(args, "birth_date"),
			Reason:        stringArg(args, "reason"),
			Comments:      stringArg(args, "comments"),
		})
	}
}

// NewLogAppointmentHandler returns the handler for log_appointment_details
// calls. Patient and appointment fields are captured into the recorder before
// the webhook is invoked, so the end-of-call snapshot has them even when the
// backend call fails.
func NewLogAppointmentHandler(tools *Tools, rec *recorder.Recorder) Handler {
	return func(ctx context.Context, args map[string]any) map[string]any {
		log.Info().Interface("args", args).Msg("tool log_appointment_details")
		if errMap := requireArgs(args, "event", "date", "start_time", "end_time", "patient_name", "phone_number", "reason"); errMap != nil {
			return errMap
		}

		rec.SetPatientInfo(recorder.PatientInfo{
			PatientName: stringArg(args, "patient_name"),
			PhoneNumber: stringArg(args, "phone_number"),
			BirthDate:   stringArg(args, "birth_date"),
			Reason:      stringArg(args, "reason"),
		})
		rec.SetAppointmentInfo(recorder.AppointmentInfo{
			Date: stringArg(args, "date"),
			Time: stringArg(args, "start_time"),
		})

		return tools.LogAppointment(ctx, AppointmentLog{
			Event:       stringArg(args, "event"),
			Date:        stringArg(args, "date"),
			StartTime:   stringArg(args, "start_time"),
			EndTime:     stringArg(args, "end_time"),
			PatientName: stringArg(args, "patient_name"),
			BirthDate:   stringArg(args, "birth_date"),
			PhoneNumber: stringArg(args, "phone_number"),
			Reason:      stringArg(args, "reason"),
		})
	}
}
