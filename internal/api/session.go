package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neiandria/clinic-scheduling/internal/records"
	"github.com/neiandria/clinic-scheduling/internal/session"
)

const sessionTokenHeader = "X-Session-Token"

var errUnknownAction = errors.New("unknown wizard action")

func signInHandler(ids records.IdentityStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IdentityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if !req.Role.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_role", fmt.Sprintf("unknown role %q", req.Role))
			return
		}
		if req.ID <= 0 || req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_identity", "id and name are required")
			return
		}

		id := records.Identity{ID: req.ID, Name: req.Name, Role: req.Role}
		token := uuid.NewString()
		if err := ids.Save(r.Context(), token, id); err != nil {
			handleError(w, err)
			return
		}

		w.Header().Set(sessionTokenHeader, token)
		writeJSON(w, http.StatusCreated, IdentityResponse{Token: token, Identity: id})
	}
}

func currentIdentityHandler(ids records.IdentityStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(sessionTokenHeader)
		if token == "" {
			handleError(w, records.ErrNoIdentity)
			return
		}
		id, err := ids.Load(r.Context(), token)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, IdentityResponse{Token: token, Identity: *id})
	}
}

func signOutHandler(ids records.IdentityStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(sessionTokenHeader)
		if token != "" {
			if err := ids.Clear(r.Context(), token); err != nil {
				handleError(w, err)
				return
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func startWizardHandler(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartWizardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		id, err := reg.Start(session.Kind(req.Kind), req.PatientID)
		if err != nil {
			handleError(w, err)
			return
		}

		var view session.View
		err = reg.Do(id, func(wiz *session.Wizard) error {
			var err error
			view, err = session.Render(r.Context(), id, wiz)
			return err
		})
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, view)
	}
}

func getWizardHandler(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var view session.View
		err := reg.Do(id, func(wiz *session.Wizard) error {
			var err error
			view, err = session.Render(r.Context(), id, wiz)
			return err
		})
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// wizardActionHandler applies one selection or navigation step. A rejected
// action answers with the error; the wizard stays where it was and keeps
// the message for the next render.
func wizardActionHandler(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		action := chi.URLParam(r, "action")

		var in WizardInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		var view session.View
		err := reg.Do(id, func(wiz *session.Wizard) error {
			if err := applyAction(r, wiz, action, in); err != nil {
				return err
			}
			var err error
			view, err = session.Render(r.Context(), id, wiz)
			return err
		})
		switch {
		case errors.Is(err, errUnknownAction):
			writeError(w, http.StatusNotFound, "unknown_action", err.Error())
		case err != nil:
			handleError(w, err)
		default:
			writeJSON(w, http.StatusOK, view)
		}
	}
}

func applyAction(r *http.Request, wiz *session.Wizard, action string, in WizardInput) error {
	ctx := r.Context()
	switch action {
	case "patient":
		return wiz.SelectPatient(ctx, in.PatientID)
	case "specialty":
		return wiz.SelectSpecialty(ctx, in.Specialty)
	case "doctor":
		return wiz.SelectDoctor(ctx, in.DoctorID)
	case "date":
		return wiz.SelectDateString(in.Date)
	case "time":
		return wiz.SelectTime(ctx, in.Time)
	case "next":
		return wiz.Next()
	case "back":
		return wiz.Back()
	case "prev-month":
		wiz.PreviousMonth()
		return nil
	case "next-month":
		wiz.NextMonth()
		return nil
	case "confirm":
		_, err := wiz.Confirm(ctx)
		return err
	default:
		return wiz.Reject(fmt.Errorf("%w %q", errUnknownAction, action))
	}
}
