// Package parsedmail parses raw RFC 5322 messages and converts them into
// the canonical stored shapes.
package parsedmail

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"

	"github.com/davidbowland/emails-email-api/internal/charset"
)

func init() {
	message.CharsetReader = charset.Reader
}

// Address is a parsed mailbox from an address header.
type Address struct {
	Address string
	Name    string
}

// Attachment is one non-body part of a parsed message. ContentID keeps its
// surrounding angle brackets stripped; Checksum is the hex digest of the
// part body and identifies parts that carry no Content-ID.
type Attachment struct {
	Checksum    string
	ContentID   string
	ContentType string
	Filename    string
	Size        int64
}

// Parsed is the structured view of one raw message.
type Parsed struct {
	Attachments []Attachment
	BCC         []Address
	BodyHTML    string
	BodyText    string
	CC          []Address
	Date        time.Time
	From        []Address
	Headers     map[string]string
	InReplyTo   string
	MessageID   string
	References  []string
	ReplyTo     []Address
	Subject     string
	To          []Address
}

// Parse reads a raw RFC 5322 message. Header and body defects degrade the
// result rather than fail it: a message that opens at all yields a Parsed.
func Parse(raw []byte) (*Parsed, error) {
	reader, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		if reader == nil {
			return nil, fmt.Errorf("parse message: %w", err)
		}
	}
	defer reader.Close()

	parsed := &Parsed{
		Headers:    map[string]string{},
		References: []string{},
	}

	if subject, err := reader.Header.Subject(); err == nil {
		parsed.Subject = subject
	}
	if date, err := reader.Header.Date(); err == nil {
		parsed.Date = date.UTC()
	}
	if id, err := reader.Header.MessageID(); err == nil {
		parsed.MessageID = id
	}
	if ids, err := reader.Header.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		parsed.InReplyTo = ids[0]
	}
	if refs, err := reader.Header.MsgIDList("References"); err == nil && refs != nil {
		parsed.References = refs
	}

	parsed.From = addressList(&reader.Header, "From")
	parsed.ReplyTo = addressList(&reader.Header, "Reply-To")
	parsed.To = addressList(&reader.Header, "To")
	parsed.CC = addressList(&reader.Header, "Cc")
	parsed.BCC = addressList(&reader.Header, "Bcc")

	fields := reader.Header.Fields()
	for fields.Next() {
		key := strings.ToLower(fields.Key())
		if _, seen := parsed.Headers[key]; seen {
			continue
		}
		if value, err := fields.Text(); err == nil {
			parsed.Headers[key] = value
		}
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			mediaType, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(mediaType, "text/html"):
				parsed.BodyHTML = appendBody(parsed.BodyHTML, body)
			case strings.HasPrefix(mediaType, "text/plain") || mediaType == "":
				parsed.BodyText = appendBody(parsed.BodyText, body)
			default:
				// Inline non-text parts, typically related images.
				parsed.Attachments = append(parsed.Attachments, buildAttachment(&header.Header, mediaType, "", body))
			}
		case *mail.AttachmentHeader:
			mediaType, _, _ := header.ContentType()
			filename, _ := header.Filename()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			parsed.Attachments = append(parsed.Attachments, buildAttachment(&header.Header, mediaType, filename, body))
		}
	}

	return parsed, nil
}

func addressList(header *mail.Header, key string) []Address {
	list, err := header.AddressList(key)
	if err != nil || len(list) == 0 {
		return nil
	}
	out := make([]Address, len(list))
	for i, addr := range list {
		out[i] = Address{Address: addr.Address, Name: addr.Name}
	}
	return out
}

func appendBody(existing string, body []byte) string {
	text := string(body)
	if existing == "" {
		return text
	}
	return existing + "\n" + text
}

func buildAttachment(header *message.Header, mediaType, filename string, body []byte) Attachment {
	digest := md5.Sum(body)
	return Attachment{
		Checksum:    hex.EncodeToString(digest[:]),
		ContentID:   strings.Trim(header.Get("Content-Id"), "<>"),
		ContentType: mediaType,
		Filename:    filename,
		Size:        int64(len(body)),
	}
}
