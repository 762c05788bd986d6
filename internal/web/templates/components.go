// Package templates renders the small HTML fragments swapped in by htmx.
//
// Components live in components.templ; components_templ.go is its
// generated output.
package templates

//go:generate templ generate

import "github.com/a-h/templ"

// ContactRow is one line of the contacts table.
type ContactRow struct {
	ID    string
	First string
	Last  string
	Phone string
	Email string
}

// ArchiveStatusParams describes the archive UI state.
type ArchiveStatusParams struct {
	Status   string // waiting, running, complete or failed
	Percent  int
	Count    int
	Error    string
	PollWait string // htmx delay between polls while running, e.g. "600ms"
}

func (p ArchiveStatusParams) pollWait() string {
	if p.PollWait == "" {
		return "600ms"
	}
	return p.PollWait
}

func contactURL(id, suffix string) templ.SafeURL {
	return templ.URL("/contacts/" + id + suffix)
}
