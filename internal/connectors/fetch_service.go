package connectors

import (
	"context"

	"github.com/rs/zerolog"

	"dbregistry/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *ExportStore
	log       zerolog.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
	Skipped int
}

func NewFetchService(db *storage.DB, exportDir string, labels []string, connector MailConnector, log zerolog.Logger) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewExportStore(db, exportDir, log, labels...),
		log:       log,
	}
}

func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		rows, err := s.store.Store(msg)
		if err != nil {
			return res, err
		}
		if len(rows) == 0 {
			res.Skipped++
			s.log.Debug().Str("provider", msg.Provider).Str("messageId", msg.MessageID).Str("subject", msg.Subject).Msg("message carries no export")
			continue
		}
		for _, row := range rows {
			s.log.Info().Str("file", row.Filename).Str("label", row.Label).Str("hash", row.Hash[:12]).Msg("export stored")
		}
		res.Stored += len(rows)
	}
	return res, nil
}
