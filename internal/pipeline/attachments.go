package pipeline

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime/v2"
)

// Attachment is a tabular file carried by a mail message.
type Attachment struct {
	Filename string
	Content  []byte
}

var tableExtensions = map[string]struct{}{
	".csv":  {},
	".tsv":  {},
	".xlsx": {},
	".xlsm": {},
	".html": {},
	".htm":  {},
}

// IsTableFile reports whether filename has an extension the table reader accepts.
func IsTableFile(filename string) bool {
	_, ok := tableExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// ExtractAttachments parses a raw RFC 822 message and returns its subject
// and every attachment that looks like an extraction export.
func ExtractAttachments(raw []byte) (string, []Attachment, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", nil, err
	}

	var out []Attachment
	for _, att := range append(env.Attachments, env.Inlines...) {
		name := strings.TrimSpace(att.FileName)
		if name == "" || !IsTableFile(name) {
			continue
		}
		out = append(out, Attachment{Filename: filepath.Base(name), Content: att.Content})
	}
	return env.GetHeader("Subject"), out, nil
}
