// Package ingest turns raw fetched messages into classified, persisted
// records: parse, classify, persist, and conditionally notify.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/nhle/onebox/internal/mailbox"
	"github.com/nhle/onebox/internal/model"
)

// ParseMessage converts one raw RFC 5322 message into a Message record.
// It is a pure function of its inputs: no network or storage access.
// The returned message carries CategoryUncategorized; classification
// happens later in the pipeline.
func ParseMessage(account model.Account, raw mailbox.RawMessage) (*model.Message, error) {
	if len(raw.Raw) == 0 {
		return nil, errors.New("empty message body")
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw.Raw))
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	defer mr.Close()

	msg := &model.Message{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Folder:    "INBOX",
		Category:  model.CategoryUncategorized,
		Read:      raw.Seen,
		Headers:   make(map[string]string),
	}

	h := mr.Header

	if mid, err := h.MessageID(); err == nil && mid != "" {
		// MessageID strips the angle brackets; re-wrap so the stored
		// identifier keeps the header's wire form.
		msg.MessageID = fmt.Sprintf("<%s>", mid)
	} else {
		// Some senders omit Message-ID. The fallback must be stable
		// across re-fetches so the dedupe key still collides; the UID
		// is stable within a mailbox.
		msg.MessageID = fmt.Sprintf("<uid-%d@%s>", raw.UID, account.Host)
	}

	if subject, err := h.Subject(); err == nil {
		msg.Subject = subject
	}

	if date, err := h.Date(); err == nil && !date.IsZero() {
		msg.Date = date
	} else {
		msg.Date = time.Now().UTC()
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}

	if to, err := h.AddressList("To"); err == nil {
		for _, addr := range to {
			msg.To = append(msg.To, addr.Address)
		}
	}

	fields := h.Fields()
	for fields.Next() {
		key := fields.Key()
		if _, ok := msg.Headers[key]; ok {
			continue
		}
		if value, err := fields.Text(); err == nil {
			msg.Headers[key] = value
		}
	}

	walkParts(mr, msg)

	return msg, nil
}

// walkParts extracts the text/plain body, text/html body, and
// attachment metadata from the message's MIME parts.
func walkParts(mr *mail.Reader, msg *model.Message) {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return
		}
		if err != nil {
			// A broken part does not invalidate what we already have.
			return
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain"):
				if msg.TextBody == "" {
					msg.TextBody = string(body)
				}
			case strings.HasPrefix(contentType, "text/html"):
				if msg.HTMLBody == "" {
					msg.HTMLBody = string(body)
				}
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()

			// Read to measure size; attachment content is not kept.
			body, readErr := io.ReadAll(part.Body)
			if readErr != nil {
				continue
			}

			msg.Attachments = append(msg.Attachments, model.Attachment{
				Filename:  filename,
				MIMEType:  contentType,
				Size:      int64(len(body)),
				ContentID: strings.Trim(h.Get("Content-Id"), "<>"),
			})
		}
	}
}
