package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	db "github.com/JonMunkholm/contacts/internal/database"
)

// Seed inserts n fake contacts in a single transaction and returns them.
// Emails embed the issued id, so seeded contacts never collide with each other.
func (r *ContactRepo) Seed(ctx context.Context, n int) ([]Contact, error) {
	if n <= 0 {
		return nil, nil
	}

	faker := gofakeit.New(0)
	contacts := make([]Contact, 0, n)
	for range n {
		id := r.NextID()
		first, last := faker.FirstName(), faker.LastName()
		contacts = append(contacts, Contact{
			ID:    id,
			First: first,
			Last:  last,
			Phone: faker.Phone(),
			Email: fakeEmail(first, last, id, faker.DomainName()),
		})
	}

	err := r.db.InTx(ctx, func(q db.Querier) error {
		for _, c := range contacts {
			if err := q.InsertContact(ctx, c.row()); err != nil {
				return fmt.Errorf("insert contact %s: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed contacts: %w", err)
	}

	slog.Info("seeded contacts", "count", n)
	return contacts, nil
}

func fakeEmail(first, last string, id ContactID, domain string) string {
	local := strings.ToLower(first + "." + last)
	local = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.':
			return r
		default:
			return -1
		}
	}, local)
	if local = strings.Trim(local, "."); local == "" {
		local = "contact"
	}
	return fmt.Sprintf("%s.%s@%s", local, id, domain)
}
