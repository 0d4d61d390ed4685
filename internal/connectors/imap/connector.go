package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"dbregistry/internal"
	"dbregistry/internal/config"
	"dbregistry/internal/pipeline"
)

// Connector pulls export mails from an IMAP mailbox. Only messages whose
// subject and attachment names pass DetectExportMail are downloaded.
type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
	markSeen bool
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	return &Connector{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		markSeen: cfg.IMAPMarkSeen,
	}, nil
}

// exportCriteria matches unseen multipart messages; mails without
// attachments cannot carry an export.
func exportCriteria() *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Header.Add("Content-Type", "multipart")
	return criteria
}

// FetchInbox downloads up to max unseen export mails from the label mailbox.
// Headers and body structures are read first; full bodies are fetched only
// for messages that look like an export, and only those are flagged seen.
func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer client.Logout()

	if _, err := client.Select(label, false); err != nil {
		return nil, err
	}
	uids, err := client.UidSearch(exportCriteria())
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, nil
	}

	headers, err := collect(client, uids, []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchBodyStructure})
	if err != nil {
		return nil, err
	}
	picked := selectExports(headers, max)
	if len(picked) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byUID := make(map[uint32]*imap.Message, len(picked))
	wanted := make([]uint32, 0, len(picked))
	for _, msg := range picked {
		byUID[msg.Uid] = msg
		wanted = append(wanted, msg.Uid)
	}
	section := &imap.BodySectionName{Peek: true}
	bodies, err := collect(client, wanted, []imap.FetchItem{imap.FetchUid, section.FetchItem()})
	if err != nil {
		return nil, err
	}

	out := make([]internal.FetchedMailMessage, 0, len(bodies))
	seen := new(imap.SeqSet)
	for _, msg := range bodies {
		body := msg.GetBody(section)
		head, ok := byUID[msg.Uid]
		if body == nil || !ok {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		out = append(out, toFetched(head, raw))
		seen.AddNum(msg.Uid)
	}

	if c.markSeen && !seen.Empty() {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := client.UidStore(seen, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *Connector) dial() (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	var client *imapclient.Client
	var err error
	if c.secure {
		client, err = imapclient.DialTLS(addr, &tls.Config{ServerName: c.host})
	} else {
		client, err = imapclient.Dial(addr)
	}
	if err != nil {
		return nil, err
	}
	if err := client.Login(c.user, c.password); err != nil {
		_ = client.Logout()
		return nil, err
	}
	return client, nil
}

// collect runs one UID FETCH and drains it before returning, so the
// connection is free for the next command.
func collect(client *imapclient.Client, uids []uint32, items []imap.FetchItem) ([]*imap.Message, error) {
	set := new(imap.SeqSet)
	set.AddNum(uids...)
	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() { done <- client.UidFetch(set, items, messages) }()

	out := make([]*imap.Message, 0, len(uids))
	for msg := range messages {
		if msg != nil {
			out = append(out, msg)
		}
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return out, nil
}

// selectExports keeps the messages DetectExportMail accepts, oldest first,
// and the newest max of them when there are more.
func selectExports(messages []*imap.Message, max int) []*imap.Message {
	var out []*imap.Message
	for _, msg := range messages {
		subject := ""
		if msg.Envelope != nil {
			subject = msg.Envelope.Subject
		}
		if pipeline.DetectExportMail(subject, attachmentNames(msg.BodyStructure)).IsExport {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Uid < out[j].Uid })
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

// attachmentNames lists the table file names found in a body structure.
func attachmentNames(bs *imap.BodyStructure) []string {
	if bs == nil {
		return nil
	}
	var names []string
	bs.Walk(func(_ []int, part *imap.BodyStructure) bool {
		if len(part.Parts) > 0 {
			return true
		}
		name, err := part.Filename()
		if err != nil || name == "" {
			name = part.Params["name"]
		}
		if name = strings.TrimSpace(name); name != "" && pipeline.IsTableFile(name) {
			names = append(names, name)
		}
		return true
	})
	return names
}

func toFetched(msg *imap.Message, raw []byte) internal.FetchedMailMessage {
	fetched := internal.FetchedMailMessage{
		Provider:   "imap",
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	if msg.Envelope != nil {
		fetched.MessageID = msg.Envelope.MessageId
		fetched.Subject = msg.Envelope.Subject
		fetched.From = formatAddresses(msg.Envelope.From)
	}
	if fetched.MessageID == "" {
		fetched.MessageID = fmt.Sprintf("imap-%d", msg.Uid)
	}
	if !msg.InternalDate.IsZero() {
		fetched.ReceivedAt = msg.InternalDate.UTC().Format(time.RFC3339)
	}
	return fetched
}

func formatAddresses(addrs []*imap.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(a.MailboxName+"@"+a.HostName, "@")
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, email))
		} else {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}
