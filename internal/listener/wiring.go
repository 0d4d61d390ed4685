package listener

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"dbregistry/internal/config"
	"dbregistry/internal/connectors"
	gmailconnector "dbregistry/internal/connectors/gmail"
	imapconnector "dbregistry/internal/connectors/imap"
	"dbregistry/internal/connectors/sheets"
	"dbregistry/internal/contacts"
	"dbregistry/internal/storage"
)

// NewFromConfig builds a watch service with mail fetching and publishing
// switched on as the configuration asks.
func NewFromConfig(ctx context.Context, db *storage.DB, cfg config.Config, log zerolog.Logger) (*Service, error) {
	svc := NewService(db, cfg, log)

	src, err := ContactsSource(ctx, cfg, cfg.ContactsPath, cfg.ContactsURL)
	if err != nil {
		return nil, err
	}
	if src != nil {
		svc.WithContacts(src)
	}

	if cfg.WatchMailFetch {
		conn, err := MailConnector(ctx, cfg, cfg.WatchProvider)
		if err != nil {
			return nil, err
		}
		svc.WithMail(conn)
	}

	if cfg.WatchPublish {
		if err := cfg.Require("SHEETS_PUBLISH_ID", cfg.SheetsPublishID); err != nil {
			return nil, err
		}
		client, err := sheets.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		svc.WithPublisher(client)
	}
	return svc, nil
}

// ContactsSource picks where contacts come from: a file, then a URL, then the
// configured spreadsheet. It returns nil when none is set.
func ContactsSource(ctx context.Context, cfg config.Config, path, url string) (contacts.Source, error) {
	switch {
	case strings.TrimSpace(path) != "":
		return contacts.FileSource{Path: path}, nil
	case strings.TrimSpace(url) != "":
		return contacts.URLSource{URL: url, Client: contacts.NewClient(cfg)}, nil
	case strings.TrimSpace(cfg.ContactsSheetID) != "":
		client, err := sheets.NewClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return sheets.ContactSheet{Client: client, SpreadsheetID: cfg.ContactsSheetID, Range: cfg.ContactsSheetRange}, nil
	}
	return nil, nil
}

func MailConnector(ctx context.Context, cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", provider)
	}
}
