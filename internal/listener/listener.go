// Package listener keeps the registry current: it polls the mailbox for new
// exports and rebuilds the registry whenever its inputs change.
package listener

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"dbregistry/internal/config"
	"dbregistry/internal/connectors"
	"dbregistry/internal/contacts"
	"dbregistry/internal/pipeline"
	"dbregistry/internal/storage"
)

const (
	lastHashKey  = "inputs.last_hash"
	lastRunKey   = "runs.last_id"
	registryFile = "registry.xlsx"
)

// Publisher replaces the contents of a sheet with rows.
type Publisher interface {
	Publish(ctx context.Context, spreadsheetID, sheet string, rows [][]any) error
}

type Service struct {
	db        *storage.DB
	cfg       config.Config
	log       zerolog.Logger
	processor *pipeline.ProcessingService

	fetch     *connectors.FetchService
	publisher Publisher
	contacts  contacts.Source

	// contactsFile is hashed with the exports when contacts come from disk.
	contactsFile string
}

func NewService(db *storage.DB, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		db:        db,
		cfg:       cfg,
		log:       log,
		processor: pipeline.NewProcessingService(db, cfg, log),
	}
}

// WithMail makes every cycle fetch new exports through connector first.
func (s *Service) WithMail(connector connectors.MailConnector) *Service {
	s.fetch = connectors.NewFetchService(s.db, s.cfg.ExportDir, []string{s.cfg.SourceALabel, s.cfg.SourceBLabel}, connector, s.log)
	return s
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) WithContacts(src contacts.Source) *Service {
	s.contacts = src
	if fs, ok := src.(contacts.FileSource); ok {
		s.contactsFile = fs.Path
	}
	return s
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.WatchIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error().Err(err).Msg("watch cycle failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunOnce runs one cycle and reports whether a new registry was built.
func (s *Service) RunOnce(ctx context.Context) (bool, error) {
	if s.fetch != nil {
		res, err := s.fetch.FetchAndStore(ctx, s.cfg.WatchLabel, s.cfg.WatchFetchMax)
		if err != nil {
			return false, err
		}
		s.log.Info().Int("fetched", res.Fetched).Int("stored", res.Stored).Int("skipped", res.Skipped).Msg("mail checked")
	}

	in, err := s.processor.ResolveInputs(pipeline.RunInput{
		SourceA:       s.cfg.SourceAPath,
		SourceB:       s.cfg.SourceBPath,
		Contacts:      s.contacts,
		ContactsLabel: s.contactsLabel(),
	})
	if err != nil {
		return false, err
	}

	files := []string{in.SourceA, in.SourceB}
	if s.contactsFile != "" {
		files = append(files, s.contactsFile)
	}
	hash, err := InputsHash(files...)
	if err != nil {
		return false, err
	}
	prev, err := s.db.GetMetadata(lastHashKey)
	if err != nil {
		return false, err
	}
	if prev != nil && *prev == hash {
		s.log.Debug().Str("hash", hash[:12]).Msg("inputs unchanged")
		return false, nil
	}

	res, err := s.processor.Run(ctx, in)
	var consistency *pipeline.ConsistencyError
	if errors.As(err, &consistency) {
		// The aborted run is stored; retry only once the inputs change.
		if err := s.db.SetMetadata(lastHashKey, hash); err != nil {
			return false, err
		}
		s.log.Warn().Str("run", res.RunID).Int("conflicts", len(consistency.Conflicts)).Msg("registry not rebuilt")
		return false, err
	}
	if err != nil {
		return false, err
	}

	out := filepath.Join(s.cfg.OutputDir, registryFile)
	if err := pipeline.ExportRegistryToXLSX(res.Entries, res.Diagnostics, out); err != nil {
		return false, err
	}
	if s.publisher != nil && s.cfg.SheetsPublishID != "" {
		if err := s.publisher.Publish(ctx, s.cfg.SheetsPublishID, s.cfg.SheetsPublishRange, pipeline.RegistryTable(res.Entries)); err != nil {
			return false, fmt.Errorf("publish run %s: %w", res.RunID, err)
		}
	}

	if err := s.db.SetMetadata(lastHashKey, hash); err != nil {
		return false, err
	}
	if err := s.db.SetMetadata(lastRunKey, res.RunID); err != nil {
		return false, err
	}
	s.log.Info().Str("run", res.RunID).Int("entries", len(res.Entries)).Str("out", out).Msg("registry rebuilt")
	return true, nil
}

func (s *Service) contactsLabel() string {
	switch {
	case s.contactsFile != "":
		return s.contactsFile
	case s.cfg.ContactsURL != "":
		return s.cfg.ContactsURL
	case s.cfg.ContactsSheetID != "":
		return "sheet:" + s.cfg.ContactsSheetID
	}
	return ""
}

// InputsHash digests the contents of files in order.
func InputsHash(files ...string) (string, error) {
	h := sha256.New()
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "\x00%s\x00", filepath.Base(path))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
