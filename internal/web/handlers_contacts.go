package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/contacts/internal/core"
	db "github.com/JonMunkholm/contacts/internal/database"
	"github.com/JonMunkholm/contacts/internal/logging"
	"github.com/JonMunkholm/contacts/internal/web/templates"
)

// Confirmation messages shown after a successful change.
const (
	msgCreated = "Created New Contact!"
	msgUpdated = "Updated Contact!"
	msgDeleted = "Deleted Contact!"
)

// maxBodyBytes caps contact form and JSON bodies.
const maxBodyBytes = 64 << 10

// ContactListResponse is one page of contacts.
type ContactListResponse struct {
	Contacts []core.Contact `json:"contacts"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
	Query    string         `json:"q,omitempty"`
}

// ContactResponse wraps a contact with a confirmation message.
type ContactResponse struct {
	Message string       `json:"message,omitempty"`
	Contact core.Contact `json:"contact"`
}

// EmailCheckResponse is the live-validation result for an email.
type EmailCheckResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// contactInput is the JSON body of a create or update.
type contactInput struct {
	First string `json:"first"`
	Last  string `json:"last"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query().Get("q")
	page := parsePage(r.URL.Query().Get("page"))

	var (
		contacts []core.Contact
		err      error
	)
	if q != "" {
		contacts, err = s.service.Contacts.Search(ctx, q, page)
	} else {
		contacts, err = s.service.Contacts.List(ctx, page)
	}
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if isHTMX(r) {
		rows := make([]templates.ContactRow, len(contacts))
		for i, c := range contacts {
			rows[i] = templates.ContactRow{ID: c.ID.String(), First: c.First, Last: c.Last, Phone: c.Phone, Email: c.Email}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		templates.ContactRows(rows).Render(ctx, w)
		return
	}

	writeJSON(w, http.StatusOK, ContactListResponse{
		Contacts: contacts,
		Page:     page,
		PageSize: core.PageSize,
		Query:    q,
	})
}

func (s *Server) handleCountContacts(w http.ResponseWriter, r *http.Request) {
	count, err := s.service.Contacts.Count(r.Context())
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, "(%d total Contacts)", count)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": count})
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, err := decodeContact(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	c.ID = s.service.Contacts.NextID()

	errs, err := s.service.Contacts.Create(ctx, c)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if !errs.Valid() {
		respondFieldErrors(w, c, errs)
		return
	}

	logging.WithFields(ctx, "contact_id", c.ID).Info("contact created")

	if isFormPost(r) {
		http.Redirect(w, r, "/contacts", http.StatusSeeOther)
		return
	}
	w.Header().Set("Location", "/contacts/"+c.ID.String())
	writeJSON(w, http.StatusCreated, ContactResponse{Message: msgCreated, Contact: c})
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	id, err := core.ParseContactID(chi.URLParam(r, "contactID"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	c, ok, err := s.service.Contacts.Find(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if !ok {
		s.respondError(w, r, fmt.Errorf("contact %s: %w", id, db.ErrNotFound), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ContactResponse{Contact: c})
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := core.ParseContactID(chi.URLParam(r, "contactID"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	c, err := decodeContact(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	c.ID = id

	if _, ok, err := s.service.Contacts.Find(ctx, id); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	} else if !ok {
		s.respondError(w, r, fmt.Errorf("contact %s: %w", id, db.ErrNotFound), http.StatusNotFound)
		return
	}

	errs, err := s.service.Contacts.Update(ctx, c)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if !errs.Valid() {
		respondFieldErrors(w, c, errs)
		return
	}

	logging.WithFields(ctx, "contact_id", id).Info("contact updated")

	if isFormPost(r) {
		http.Redirect(w, r, "/contacts/"+id.String(), http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, ContactResponse{Message: msgUpdated, Contact: c})
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := core.ParseContactID(chi.URLParam(r, "contactID"))
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	if err := s.service.Contacts.Delete(ctx, id); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	logging.WithFields(ctx, "contact_id", id).Info("contact deleted")

	if isFormPost(r) {
		http.Redirect(w, r, "/contacts", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msgDeleted})
}

// handleValidateEmail backs live validation of the email field. The optional
// id names the contact being edited so its own address is accepted.
func (s *Server) handleValidateEmail(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var id *core.ContactID
	if raw := query.Get("id"); raw != "" {
		parsed, err := core.ParseContactID(raw)
		if err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
		id = &parsed
	}

	msg, err := s.service.Contacts.ValidateEmail(r.Context(), id, query.Get("email"))
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		templates.EmailFeedback(msg).Render(r.Context(), w)
		return
	}
	writeJSON(w, http.StatusOK, EmailCheckResponse{Valid: msg == "", Message: msg})
}

// decodeContact reads a contact from a JSON body or from form fields named
// first_name, last_name, phone and email.
func decodeContact(w http.ResponseWriter, r *http.Request) (core.Contact, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if isJSONBody(r) {
		var in contactInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
			return core.Contact{}, fmt.Errorf("decode contact: %w", err)
		}
		return core.Contact{First: in.First, Last: in.Last, Phone: in.Phone, Email: in.Email}, nil
	}

	if err := r.ParseForm(); err != nil {
		return core.Contact{}, fmt.Errorf("parse contact form: %w", err)
	}
	return core.Contact{
		First: r.PostForm.Get("first_name"),
		Last:  r.PostForm.Get("last_name"),
		Phone: r.PostForm.Get("phone"),
		Email: r.PostForm.Get("email"),
	}, nil
}

func isJSONBody(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// isFormPost reports a plain browser form submission, which gets a redirect
// instead of a JSON body.
func isFormPost(r *http.Request) bool {
	return !isHTMX(r) && !wantsJSON(r) && r.Method == http.MethodPost
}

// parsePage reads a 1-indexed page number; anything unparsable is page 1.
func parsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}
