package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/vetdesk/vet-booking/internal/booking"
	"github.com/vetdesk/vet-booking/internal/directory"
)

var validate = validator.New()

// BookingService is the surface of booking.Service the handlers use.
type BookingService interface {
	Reserve(ctx context.Context, practitionerID uuid.UUID, slotTime time.Time, holderID uuid.UUID, durationMinutes int) (*booking.SlotReservation, error)
	Release(ctx context.Context, reservationID uuid.UUID, holderID uuid.UUID) error
	CurrentReservation(ctx context.Context, holderID uuid.UUID) (*booking.SlotReservation, error)

	Book(ctx context.Context, req booking.BookRequest, requesterID uuid.UUID) (*booking.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID, requesterID uuid.UUID) (*booking.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, actor directory.Actor) error
	ConfirmCancellation(ctx context.Context, id uuid.UUID, requesterID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID, actor directory.Actor) error
	Update(ctx context.Context, id uuid.UUID, patch booking.UpdatePatch, actor directory.Actor) (*booking.Appointment, error)

	CalendarFor(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]booking.CalendarEntry, error)
	ClinicAppointments(ctx context.Context, clinicID uuid.UUID, from, to time.Time) ([]booking.Appointment, error)
	OwnerAppointments(ctx context.Context, ownerID uuid.UUID, from, to time.Time) ([]booking.Appointment, error)
	PastAppointments(ctx context.Context, scope booking.SearchScope, filter booking.SearchFilter, page booking.Page) (*booking.AppointmentPage, error)
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

func mustActor(w http.ResponseWriter, r *http.Request) (directory.Actor, bool) {
	actor, ok := GetActor(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing_token", "no authenticated actor")
	}
	return actor, ok
}

func urlUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// timeRange parses required from/to RFC3339 query parameters.
func timeRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC3339 timestamp")
		return from, to, false
	}
	to, err = time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", "to must be an RFC3339 timestamp")
		return from, to, false
	}
	return from, to, true
}

func reserveHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		var req ReserveRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		practitionerID, _ := uuid.Parse(req.PractitionerID)

		res, err := svc.Reserve(r.Context(), practitionerID, req.SlotTime, actor.ID, req.DurationMinutes)
		if err != nil {
			writeBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toReservationResponse(res))
	}
}

func releaseHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		if err := svc.Release(r.Context(), id, actor.ID); err != nil {
			writeBookingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func currentReservationHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		res, err := svc.CurrentReservation(r.Context(), actor.ID)
		if err != nil {
			writeBookingError(w, err)
			return
		}
		if res == nil {
			writeError(w, http.StatusNotFound, "reservation_not_found", "no current reservation")
			return
		}

		writeJSON(w, http.StatusOK, toReservationResponse(res))
	}
}

func bookHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		var req BookAppointmentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		petID, _ := uuid.Parse(req.PetID)
		practitionerID, _ := uuid.Parse(req.PractitionerID)
		clinicID, _ := uuid.Parse(req.ClinicID)

		appt, err := svc.Book(r.Context(), booking.BookRequest{
			PetID:          petID,
			PractitionerID: practitionerID,
			ClinicID:       clinicID,
			SlotTime:       req.SlotTime,
			Notes:          req.Notes,
			Type:           req.Type,
		}, actor.ID)
		if err != nil {
			writeBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func confirmHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Confirm(r.Context(), id, actor.ID)
		if err != nil {
			writeBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		if err := svc.Cancel(r.Context(), id, actor); err != nil {
			writeBookingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func confirmCancellationHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		if err := svc.ConfirmCancellation(r.Context(), id, actor.ID); err != nil {
			writeBookingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func deleteHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), id, actor); err != nil {
			writeBookingError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func updateHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		patch := booking.UpdatePatch{
			ScheduledAt: req.ScheduledAt,
			Notes:       req.Notes,
			Type:        req.Type,
		}
		if req.PractitionerID != nil {
			pid, _ := uuid.Parse(*req.PractitionerID)
			patch.PractitionerID = &pid
		}
		if req.Status != nil {
			st := booking.Status(*req.Status)
			patch.Status = &st
		}

		appt, err := svc.Update(r.Context(), id, patch, actor)
		if err != nil {
			writeBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func calendarHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		from, to, ok := timeRange(w, r)
		if !ok {
			return
		}

		entries, err := svc.CalendarFor(r.Context(), id, from, to)
		if err != nil {
			writeBookingError(w, err)
			return
		}

		resp := make([]CalendarEntryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, CalendarEntryResponse{
				Kind:            string(e.Kind),
				AppointmentID:   e.AppointmentID,
				PetID:           e.PetID,
				ClinicID:        e.ClinicID,
				PractitionerID:  e.PractitionerID,
				StartsAt:        e.StartsAt,
				Status:          e.Status,
				DurationMinutes: e.DurationMinutes,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func clinicAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		from, to, ok := timeRange(w, r)
		if !ok {
			return
		}

		appts, err := svc.ClinicAppointments(r.Context(), id, from, to)
		if err != nil {
			writeBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func ownerAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		from, to, ok := timeRange(w, r)
		if !ok {
			return
		}

		appts, err := svc.OwnerAppointments(r.Context(), actor.ID, from, to)
		if err != nil {
			writeBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponses(appts))
	}
}

func toAppointmentResponses(appts []booking.Appointment) []AppointmentResponse {
	resp := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		resp = append(resp, toAppointmentResponse(&appts[i]))
	}
	return resp
}

// pastAppointmentsHandler serves the paginated search; the scope id comes
// from the URL for clinic/practitioner scopes and from the actor for owners.
func pastAppointmentsHandler(svc BookingService, kind booking.SearchScopeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := mustActor(w, r)
		if !ok {
			return
		}

		scope := booking.SearchScope{Kind: kind, ID: actor.ID}
		if kind != booking.ScopeOwner {
			id, ok := urlUUID(w, r, "id")
			if !ok {
				return
			}
			scope.ID = id
		}

		q := r.URL.Query()
		filter := booking.SearchFilter{
			PetName:   q.Get("pet_name"),
			OwnerName: q.Get("owner_name"),
		}
		if v := q.Get("from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be an RFC3339 timestamp")
				return
			}
			filter.From = &t
		}
		if v := q.Get("to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be an RFC3339 timestamp")
				return
			}
			filter.To = &t
		}

		page := booking.Page{}
		if v := q.Get("page"); v != "" {
			page.Number, _ = strconv.Atoi(v)
		}
		if v := q.Get("size"); v != "" {
			page.Size, _ = strconv.Atoi(v)
		}

		result, err := svc.PastAppointments(r.Context(), scope, filter, page)
		if err != nil {
			writeBookingError(w, err)
			return
		}

		items := make([]PastAppointmentResponse, 0, len(result.Items))
		for i := range result.Items {
			rec := &result.Items[i]
			items = append(items, PastAppointmentResponse{
				AppointmentResponse: toAppointmentResponse(&rec.Appointment),
				PetName:             rec.PetName,
				OwnerName:           rec.OwnerName,
			})
		}

		writeJSON(w, http.StatusOK, PageResponse{
			Items:  items,
			Total:  result.Total,
			Number: result.Number,
			Size:   result.Size,
		})
	}
}
