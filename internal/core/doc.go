// Package core provides the contact store and the background archive export.
//
// This package holds all domain logic independent of any transport. It is
// used by the web handlers, the CLI and tests without modification.
//
// # Contacts
//
// [ContactRepo] issues ids, enforces email uniqueness and serves paginated
// lists and name searches. Business failures come back as [ContactErrors],
// one optional message per field. Infrastructure failures come back as
// wrapped errors.
//
//	errs, err := repo.Create(ctx, core.Contact{ID: repo.NextID(), Email: "a@x.com"})
//	if err != nil {
//	    // storage failed
//	}
//	if !errs.Valid() {
//	    // show errs.Email next to the field
//	}
//
// The database's UNIQUE constraint is the final word on email uniqueness.
// [ContactRepo.ValidateEmail] is a precheck that the live-validation
// endpoint shares with Create and Update.
//
// # Archive
//
// [Archiver] owns a single job slot:
//
//	Waiting --Start--> Running --> Complete
//	                           \-> Failed
//	any state --Reset--> Waiting
//
// A run walks its stages with random delays, then snapshots every contact
// as JSON. Reset cancels a run cooperatively: the run notices at its next
// checkpoint and leaves no archive behind.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each category has a code prefix for support reference: DB, ARC, REQ and
// the ERR000 fallback.
package core
