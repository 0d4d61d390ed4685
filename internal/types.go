package internal

import "time"

// Placeholder is the canonical name for a database the extractors could not identify.
const Placeholder = "NI"

type Answer string

const (
	AnswerUnknown Answer = ""
	AnswerYes     Answer = "Yes"
	AnswerNo      Answer = "No"
)

// Ongoing recodes a collection status answer: 1 collecting, 2 stopped, 3 unknown.
func (a Answer) Ongoing() int {
	switch a {
	case AnswerYes:
		return 1
	case AnswerNo:
		return 2
	default:
		return 3
	}
}

type RawSlot struct {
	Index        int
	Name         *string
	Link         *string
	Country      *string
	DataType     *string
	Availability Answer
	Ongoing      Answer
}

type RawRow struct {
	Source    string
	RowNo     int
	Title     *string
	Published *time.Time
	Contact   *string
	Slots     []RawSlot
	Extra     map[string]string
}

type SlotRecord struct {
	Source       string
	RowNo        int
	Title        *string
	Published    *time.Time
	Contact      *string
	Extra        map[string]string
	Index        int
	Name         string
	Link         *string
	Country      *string
	DataType     *string
	Availability Answer
	Ongoing      Answer
}

// Publication is one contributing extraction row. Source and Row identify it;
// two rows of the same paper share a title.
type Publication struct {
	Source    string     `json:"source,omitempty"`
	Row       int        `json:"row,omitempty"`
	Title     *string    `json:"title"`
	Published *time.Time `json:"published,omitempty"`
	Contact   *string    `json:"contact"`
}

type DataTypes struct {
	EHR              *int
	InsuranceClaims  *int
	DiseaseCohort    *int
	NationalRegistry *int
	Other            *string
}

type DatabaseRecord struct {
	Name         string
	Country      *string
	DataType     *string
	Availability Answer
	Ongoing      Answer
	Links        []string
	Count        int
	Contacts     string
	Publications []Publication
	Types        DataTypes
}

type ContactRow struct {
	Name        string
	PersonName  *string
	PersonEmail *string
	ContactForm *string
}

type RegistryEntry struct {
	RecordID     int
	Name         string
	PersonName   *string
	PersonEmail  *string
	ContactForm  *string
	Country      *string
	DataType     *string
	Links        []string
	Ongoing      int
	Availability Answer
	Count        int
	Contacts     string
	Types        DataTypes
	Publications []Publication
}

type ConflictKind string

const (
	DiagConflict       ConflictKind = "conflict"
	DiagSimilarNames   ConflictKind = "similar_names"
	DiagMissingContact ConflictKind = "missing_contact"
	DiagOrphanContact  ConflictKind = "orphan_contact"
	DiagUnidentified   ConflictKind = "unidentified"
)

type Diagnostic struct {
	Kind   ConflictKind
	Name   string
	Field  string
	Values []string
	Detail string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

// SourceRow is an export file received by mail. Label says which search it
// belongs to, or is empty when the file name did not tell.
type SourceRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Filename   string
	Label      string
	Hash       string
	Path       string
	Status     string
}

// Run statuses. A run rejected by the consistency check keeps its
// diagnostics but is never picked as the latest run.
const (
	RunOK           = "ok"
	RunInconsistent = "inconsistent"
)

type RunRow struct {
	ID        string
	Status    string
	SourceA   string
	SourceB   string
	Contacts  string
	Counts    map[string]int
	Timings   map[string]float64
	CreatedAt string
}
