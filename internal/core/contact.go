package core

import (
	"fmt"
	"strconv"

	db "github.com/JonMunkholm/contacts/internal/database"
)

// ContactID identifies a contact. Ids are issued by [ContactRepo.NextID]
// and never reused.
type ContactID int64

// String formats the id for URLs and logs.
func (id ContactID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseContactID parses an id from a URL parameter.
func ParseContactID(s string) (ContactID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid contact id %q", s)
	}
	return ContactID(n), nil
}

// Contact is a person in the address book.
// Phone is free text. Email is required and unique across all contacts.
type Contact struct {
	ID    ContactID `json:"id"`
	First string    `json:"first"`
	Last  string    `json:"last"`
	Phone string    `json:"phone"`
	Email string    `json:"email" validate:"required,email"`
}

// ContactErrors holds one optional message per field.
// The zero value means the contact is valid.
type ContactErrors struct {
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Valid reports whether no field has an error.
func (e ContactErrors) Valid() bool {
	return e == ContactErrors{}
}

// Fields returns the non-empty messages keyed by field name.
func (e ContactErrors) Fields() map[string]string {
	fields := make(map[string]string, 4)
	for name, msg := range map[string]string{
		"first": e.First,
		"last":  e.Last,
		"phone": e.Phone,
		"email": e.Email,
	} {
		if msg != "" {
			fields[name] = msg
		}
	}
	return fields
}

func (c Contact) row() db.Contact {
	return db.Contact{
		ID:    int64(c.ID),
		First: c.First,
		Last:  c.Last,
		Phone: c.Phone,
		Email: c.Email,
	}
}

func contactFromRow(r db.Contact) Contact {
	return Contact{
		ID:    ContactID(r.ID),
		First: r.First,
		Last:  r.Last,
		Phone: r.Phone,
		Email: r.Email,
	}
}

func contactsFromRows(rows []db.Contact) []Contact {
	contacts := make([]Contact, len(rows))
	for i, r := range rows {
		contacts[i] = contactFromRow(r)
	}
	return contacts
}
