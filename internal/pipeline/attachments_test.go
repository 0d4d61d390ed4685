package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mailWithExports = "From: bot@example.org\r\n" +
	"Subject: Covidence extraction export\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"xx\"\r\n" +
	"\r\n" +
	"--xx\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"Attached.\r\n" +
	"--xx\r\n" +
	"Content-Type: text/csv\r\n" +
	"Content-Disposition: attachment; filename=\"search1.csv\"\r\n" +
	"\r\n" +
	"Title,Name of database 1\r\n" +
	"--xx\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"protocol.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQK\r\n" +
	"--xx--\r\n"

func TestExtractAttachments(t *testing.T) {
	subject, atts, err := ExtractAttachments([]byte(mailWithExports))
	require.NoError(t, err)
	assert.Equal(t, "Covidence extraction export", subject)
	require.Len(t, atts, 1)
	assert.Equal(t, "search1.csv", atts[0].Filename)
	assert.Contains(t, string(atts[0].Content), "Name of database 1")
}

func TestDetectExportMail(t *testing.T) {
	assert.True(t, DetectExportMail("Covidence extraction export", []string{"search1.csv"}).IsExport)
	assert.True(t, DetectExportMail("fwd", []string{"extraction_export.xlsx"}).IsExport)
	assert.False(t, DetectExportMail("fwd", []string{"notes.csv"}).IsExport)
	assert.False(t, DetectExportMail("Database export", nil).IsExport)

	res := DetectExportMail("lunch", []string{"menu.pdf"})
	assert.False(t, res.IsExport)
	assert.Equal(t, "rules_negative", res.Reason)
}
