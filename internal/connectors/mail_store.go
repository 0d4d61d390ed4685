package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"dbregistry/internal"
	"dbregistry/internal/pipeline"
	"dbregistry/internal/storage"
	"dbregistry/internal/util"
)

// ExportStore keeps export attachments on disk, content addressed, and
// registers each one as a source in the database.
type ExportStore struct {
	db     *storage.DB
	dir    string
	labels []string
	log    zerolog.Logger
}

func NewExportStore(db *storage.DB, dir string, log zerolog.Logger, labels ...string) *ExportStore {
	return &ExportStore{db: db, dir: dir, labels: labels, log: log}
}

// Store saves the table attachments of msg. Messages that do not look like
// an export are skipped and return no rows, as are attachments that do not
// parse as an extraction export.
func (s *ExportStore) Store(msg internal.FetchedMailMessage) ([]internal.SourceRow, error) {
	subject, attachments, err := pipeline.ExtractAttachments(msg.Raw)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = msg.Subject
	}

	names := make([]string, 0, len(attachments))
	for _, att := range attachments {
		names = append(names, att.Filename)
	}
	if !pipeline.DetectExportMail(subject, names).IsExport {
		return nil, nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, err
	}

	out := make([]internal.SourceRow, 0, len(attachments))
	for _, att := range attachments {
		label := ClassifyLabel(att.Filename, subject, s.labels...)
		rows, err := pipeline.ParseExport(att.Filename, att.Content, att.Filename, s.log)
		if err != nil {
			s.log.Warn().Err(err).Str("messageId", msg.MessageID).Str("file", att.Filename).Msg("attachment is not an export")
			continue
		}
		if len(rows) == 0 {
			s.log.Warn().Str("messageId", msg.MessageID).Str("file", att.Filename).Msg("export attachment has no rows")
			continue
		}

		hashBytes := sha256.Sum256(att.Content)
		hash := hex.EncodeToString(hashBytes[:])

		path := filepath.Join(s.dir, hash+strings.ToLower(filepath.Ext(att.Filename)))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, att.Content, 0o644); err != nil {
				return nil, err
			}
		}

		row, err := s.db.UpsertSource(internal.SourceRow{
			Provider:   msg.Provider,
			MessageID:  msg.MessageID,
			Subject:    subject,
			Sender:     msg.From,
			ReceivedAt: msg.ReceivedAt,
			Filename:   att.Filename,
			Label:      label,
			Hash:       hash,
			Path:       path,
			Status:     "fetched",
		})
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// ClassifyLabel returns the first label found in the file name, then in the
// subject, or "" when neither mentions one.
func ClassifyLabel(filename, subject string, labels ...string) string {
	for _, text := range []string{filename, subject} {
		key := util.Fold(text)
		for _, label := range labels {
			if l := util.Fold(label); l != "" && strings.Contains(key, l) {
				return label
			}
		}
	}
	return ""
}
