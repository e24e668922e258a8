package scheduling

// Tool schemas advertised to the generation backend. They follow the JSON
// function-calling shape so the workflow can forward them verbatim.

// CheckAvailabilitySchema describes the check_availability_true_false tool.
var CheckAvailabilitySchema = map[string]any{
	"type":        "function",
	"name":        "check_availability_true_false",
	"description": "Check if an appointment slot is available. Returns true if slot is free, false if occupied. MUST be called before booking.",
	"parameters": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"start_datetime": map[string]any{
				"type":        "string",
				"description": "Start time in ISO 8601 format (e.g., '2025-11-15T10:30:00')",
			},
			"end_datetime": map[string]any{
				"type":        "string",
				"description": "End time in ISO 8601 format. Should be start + 30 minutes.",
			},
		},
		"required": []string{"start_datetime", "end_datetime"},
	},
}

// BookAppointmentSchema describes the book_appointment tool.
var BookAppointmentSchema = map[string]any{
	"type":        "function",
	"name":        "book_appointment",
	"description": "Book a confirmed appointment. Call ONLY ONCE after: (1) all patient info collected, (2) availability confirmed, (3) patient confirmed the time.",
	"parameters": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"start_datetime": map[string]any{
				"type":        "string",
				"description": "Confirmed appointment start time (ISO 8601)",
			},
			"end_datetime": map[string]any{
				"type":        "string",
				"description": "Confirmed appointment end time (ISO 8601)",
			},
			"patient_name": map[string]any{
				"type":        "string",
				"description": "Full name of the patient",
			},
			"birth_date": map[string]any{
				"type":        "string",
				"description": "Birth date of patient (for new patients only, optional)",
			},
			"phone_number": map[string]any{
				"type":        "string",
				"description": "Patient's phone number",
			},
			"reason": map[string]any{
				"type":        "string",
				"description": "Reason for visit / consultation reason",
			},
			"comments": map[string]any{
				"type":        "string",
				"description": "Additional notes or comments (optional)",
			},
		},
		"required": []string{"start_datetime", "end_datetime", "patient_name", "phone_number", "reason"},
	},
}

// LogAppointmentSchema describes the log_appointment_details tool.
var LogAppointmentSchema = map[string]any{
	"type":        "function",
	"name":        "log_appointment_details",
	"description": "Log all appointment details. Call IMMEDIATELY after booking, ONLY ONCE per appointment.",
	"parameters": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"event":        map[string]any{"type": "string", "description": "Event type: 'Booked', 'Cancelled', etc."},
			"date":         map[string]any{"type": "string", "description": "Appointment date"},
			"start_time":   map[string]any{"type": "string", "description": "Start time"},
			"end_time":     map[string]any{"type": "string", "description": "End time"},
			"patient_name": map[string]any{"type": "string", "description": "Full name"},
			"birth_date":   map[string]any{"type": "string", "description": "Birth date (for new patients)"},
			"phone_number": map[string]any{"type": "string", "description": "Phone number"},
			"reason":       map[string]any{"type": "string", "description": "Reason for visit"},
		},
		"required": []string{"event", "date", "start_time", "end_time", "patient_name", "phone_number", "reason"},
	},
}

// Schemas lists every tool schema in registration order.
func Schemas() []map[string]any {
	return []map[string]any{CheckAvailabilitySchema, BookAppointmentSchema, LogAppointmentSchema}
}
