package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"dbregistry/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS sources (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  filename TEXT NOT NULL,
  label TEXT NOT NULL DEFAULT '',
  hash TEXT NOT NULL,
  path TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId, filename)
);
CREATE INDEX IF NOT EXISTS idx_sources_label ON sources(label, receivedAt);

CREATE TABLE IF NOT EXISTS runs (
  id TEXT PRIMARY KEY,
  status TEXT NOT NULL DEFAULT 'ok',
  sourceA TEXT NOT NULL,
  sourceB TEXT NOT NULL,
  contacts TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE TABLE IF NOT EXISTS registry (
  runId TEXT NOT NULL,
  recordId INTEGER NOT NULL,
  name TEXT NOT NULL,
  personName TEXT,
  personEmail TEXT,
  contactForm TEXT,
  country TEXT,
  datatype TEXT,
  linksJson TEXT NOT NULL,
  ongoing INTEGER NOT NULL,
  availability TEXT NOT NULL,
  count INTEGER NOT NULL,
  authorContacts TEXT NOT NULL DEFAULT '',
  typeEhr INTEGER,
  typeInsuranceClaims INTEGER,
  typeDiseaseCohort INTEGER,
  typeNationalRegistry INTEGER,
  typeOther TEXT,
  publicationsJson TEXT NOT NULL,
  PRIMARY KEY(runId, recordId),
  FOREIGN KEY(runId) REFERENCES runs(id)
);

CREATE TABLE IF NOT EXISTS diagnostics (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  kind TEXT NOT NULL,
  name TEXT NOT NULL,
  field TEXT NOT NULL,
  valuesJson TEXT NOT NULL,
  detail TEXT NOT NULL,
  FOREIGN KEY(runId) REFERENCES runs(id)
);
CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics(runId);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

const sourceColumns = `id, provider, messageId, subject, sender, receivedAt, filename, label, hash, path, status`

func scanSource(scan func(...any) error) (internal.SourceRow, error) {
	var row internal.SourceRow
	err := scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Filename, &row.Label, &row.Hash, &row.Path, &row.Status)
	return row, err
}

func (d *DB) UpsertSource(row internal.SourceRow) (internal.SourceRow, error) {
	if row.Status == "" {
		row.Status = "fetched"
	}
	_, err := d.conn.Exec(`
INSERT INTO sources (provider, messageId, subject, sender, receivedAt, filename, label, hash, path, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId, filename) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  label=excluded.label,
  hash=excluded.hash,
  path=excluded.path,
  updatedAt=CURRENT_TIMESTAMP
`, row.Provider, row.MessageID, row.Subject, row.Sender, row.ReceivedAt, row.Filename, row.Label, row.Hash, row.Path, row.Status)
	if err != nil {
		return internal.SourceRow{}, err
	}

	stored, err := d.GetSource(row.Provider, row.MessageID, row.Filename)
	if err != nil {
		return internal.SourceRow{}, err
	}
	if stored == nil {
		return internal.SourceRow{}, errors.New("failed to upsert source")
	}
	return *stored, nil
}

func (d *DB) GetSource(provider, messageID, filename string) (*internal.SourceRow, error) {
	row, err := scanSource(d.conn.QueryRow(`
SELECT `+sourceColumns+`
FROM sources WHERE provider = ? AND messageId = ? AND filename = ?
`, provider, messageID, filename).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// LatestSource returns the most recently received export for label.
func (d *DB) LatestSource(label string) (*internal.SourceRow, error) {
	row, err := scanSource(d.conn.QueryRow(`
SELECT `+sourceColumns+`
FROM sources WHERE label = ? ORDER BY receivedAt DESC, id DESC LIMIT 1
`, label).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListSourcesByStatus(status string, limit int) ([]internal.SourceRow, error) {
	rows, err := d.conn.Query(`
SELECT `+sourceColumns+`
FROM sources WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.SourceRow
	for rows.Next() {
		row, err := scanSource(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateSourceStatus(sourceID int, status string) error {
	_, err := d.conn.Exec(`UPDATE sources SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, sourceID)
	return err
}

func (d *DB) InsertRun(run internal.RunRow) error {
	if run.Status == "" {
		run.Status = internal.RunOK
	}
	countsJSON, _ := json.Marshal(run.Counts)
	timingsJSON, _ := json.Marshal(run.Timings)
	_, err := d.conn.Exec(`
INSERT INTO runs (id, status, sourceA, sourceB, contacts, countsJson, timingsJson) VALUES (?, ?, ?, ?, ?, ?, ?)
`, run.ID, run.Status, run.SourceA, run.SourceB, run.Contacts, string(countsJSON), string(timingsJSON))
	return err
}

const runColumns = `id, status, sourceA, sourceB, contacts, countsJson, timingsJson, createdAt`

func (d *DB) GetRun(id string) (*internal.RunRow, error) {
	return d.queryRun(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
}

// LatestRun returns the newest run that passed the consistency check.
func (d *DB) LatestRun() (*internal.RunRow, error) {
	return d.queryRun(`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY createdAt DESC, rowid DESC LIMIT 1`, internal.RunOK)
}

func (d *DB) queryRun(query string, args ...any) (*internal.RunRow, error) {
	var run internal.RunRow
	var countsJSON, timingsJSON string
	err := d.conn.QueryRow(query, args...).Scan(&run.ID, &run.Status, &run.SourceA, &run.SourceB, &run.Contacts, &countsJSON, &timingsJSON, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(countsJSON), &run.Counts)
	_ = json.Unmarshal([]byte(timingsJSON), &run.Timings)
	return &run, nil
}

// ResolveRun returns the run with id, or the latest completed run when id is empty.
func (d *DB) ResolveRun(id string) (internal.RunRow, error) {
	var run *internal.RunRow
	var err error
	if id == "" {
		run, err = d.LatestRun()
	} else {
		run, err = d.GetRun(id)
	}
	if err != nil {
		return internal.RunRow{}, err
	}
	if run == nil {
		if id == "" {
			return internal.RunRow{}, errors.New("no completed runs recorded yet")
		}
		return internal.RunRow{}, fmt.Errorf("run not found: %s", id)
	}
	return *run, nil
}

func (d *DB) SaveRegistry(runID string, entries []internal.RegistryEntry) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM registry WHERE runId = ?`, runID); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
INSERT INTO registry (
  runId, recordId, name, personName, personEmail, contactForm,
  country, datatype, linksJson, ongoing, availability, count, authorContacts,
  typeEhr, typeInsuranceClaims, typeDiseaseCohort, typeNationalRegistry, typeOther, publicationsJson
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		linksJSON, _ := json.Marshal(e.Links)
		pubsJSON, _ := json.Marshal(e.Publications)
		if _, err := stmt.Exec(
			runID, e.RecordID, e.Name, e.PersonName, e.PersonEmail, e.ContactForm,
			e.Country, e.DataType, string(linksJSON), e.Ongoing, string(e.Availability), e.Count, e.Contacts,
			e.Types.EHR, e.Types.InsuranceClaims, e.Types.DiseaseCohort, e.Types.NationalRegistry, e.Types.Other, string(pubsJSON),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListRegistry(runID string) ([]internal.RegistryEntry, error) {
	rows, err := d.conn.Query(`
SELECT recordId, name, personName, personEmail, contactForm,
       country, datatype, linksJson, ongoing, availability, count, authorContacts,
       typeEhr, typeInsuranceClaims, typeDiseaseCohort, typeNationalRegistry, typeOther, publicationsJson
FROM registry WHERE runId = ? ORDER BY recordId ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RegistryEntry
	for rows.Next() {
		var e internal.RegistryEntry
		var availability, linksJSON, pubsJSON string
		if err := rows.Scan(
			&e.RecordID, &e.Name, &e.PersonName, &e.PersonEmail, &e.ContactForm,
			&e.Country, &e.DataType, &linksJSON, &e.Ongoing, &availability, &e.Count, &e.Contacts,
			&e.Types.EHR, &e.Types.InsuranceClaims, &e.Types.DiseaseCohort, &e.Types.NationalRegistry, &e.Types.Other, &pubsJSON,
		); err != nil {
			return nil, err
		}
		e.Availability = internal.Answer(availability)
		_ = json.Unmarshal([]byte(linksJSON), &e.Links)
		_ = json.Unmarshal([]byte(pubsJSON), &e.Publications)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) SaveDiagnostics(runID string, diagnostics []internal.Diagnostic) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM diagnostics WHERE runId = ?`, runID); err != nil {
		return err
	}
	for _, diag := range diagnostics {
		valuesJSON, _ := json.Marshal(diag.Values)
		if _, err := tx.Exec(`
INSERT INTO diagnostics (runId, kind, name, field, valuesJson, detail) VALUES (?, ?, ?, ?, ?, ?)
`, runID, string(diag.Kind), diag.Name, diag.Field, string(valuesJSON), diag.Detail); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) ListDiagnostics(runID string) ([]internal.Diagnostic, error) {
	rows, err := d.conn.Query(`
SELECT kind, name, field, valuesJson, detail FROM diagnostics WHERE runId = ? ORDER BY id ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Diagnostic
	for rows.Next() {
		var diag internal.Diagnostic
		var kind, valuesJSON string
		if err := rows.Scan(&kind, &diag.Name, &diag.Field, &valuesJSON, &diag.Detail); err != nil {
			return nil, err
		}
		diag.Kind = internal.ConflictKind(kind)
		_ = json.Unmarshal([]byte(valuesJSON), &diag.Values)
		out = append(out, diag)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
