package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/vetdesk/vet-booking/internal/booking"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeBookingError maps the core error taxonomy to distinguishable HTTP
// responses. Everything recoverable gets a 4xx; only unknown errors are 500.
func writeBookingError(w http.ResponseWriter, err error) {
	var nf *booking.NotFoundError
	if errors.As(err, &nf) {
		writeError(w, http.StatusNotFound, nf.Kind+"_not_found", err.Error())
		return
	}

	switch {
	case errors.Is(err, booking.ErrSlotReserved):
		writeError(w, http.StatusConflict, "slot_reserved", err.Error())
	case errors.Is(err, booking.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, booking.ErrSlotContended):
		writeError(w, http.StatusConflict, "slot_contended", err.Error())
	case errors.Is(err, booking.ErrNoReservation):
		writeError(w, http.StatusConflict, "no_reservation", err.Error())
	case errors.Is(err, booking.ErrNotReservationHolder):
		writeError(w, http.StatusForbidden, "not_reservation_holder", err.Error())
	case errors.Is(err, booking.ErrReservationExpired):
		writeError(w, http.StatusConflict, "reservation_expired", err.Error())
	case errors.Is(err, booking.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not_owner", err.Error())
	case errors.Is(err, booking.ErrPractitionerInactive):
		writeError(w, http.StatusConflict, "practitioner_inactive", err.Error())
	case errors.Is(err, booking.ErrPractitionerNotInClinic):
		writeError(w, http.StatusConflict, "practitioner_not_in_clinic", err.Error())
	case errors.Is(err, booking.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, booking.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "unauthorized", err.Error())
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
	}
}
