package core

import (
	"context"
	"fmt"

	db "github.com/JonMunkholm/contacts/internal/database"
	"github.com/JonMunkholm/contacts/internal/metrics"
)

// Service bundles the contact store and its archiver over one backend.
type Service struct {
	Contacts *ContactRepo
	Archiver *Archiver

	db db.DB
}

// NewService seeds the id counter from database and builds the archiver.
func NewService(ctx context.Context, database db.DB, cfg ArchiverConfig, m *metrics.Metrics) (*Service, error) {
	repo, err := NewContactRepo(ctx, database, m)
	if err != nil {
		return nil, fmt.Errorf("create contact repo: %w", err)
	}

	return &Service{
		Contacts: repo,
		Archiver: NewArchiver(repo, cfg, m),
		db:       database,
	}, nil
}

// Ping checks that the backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Export runs one archive to completion and returns it. An archive that is
// already Complete is returned as is; a Failed archiver is reset first.
func (s *Service) Export(ctx context.Context) (*Archive, error) {
	if s.Archiver.Status() == StatusFailed {
		s.Archiver.Reset()
	}
	s.Archiver.Start()

	if err := s.Archiver.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for archive: %w", err)
	}

	if ar := s.Archiver.Archive(); ar != nil {
		return ar, nil
	}
	if err := s.Archiver.Err(); err != nil {
		return nil, err
	}
	return nil, ErrArchiveNotReady
}

// Shutdown stops an in-flight archive run.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.Archiver.Shutdown(ctx)
}
