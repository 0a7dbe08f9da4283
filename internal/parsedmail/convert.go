package parsedmail

import (
	"html"
	"strings"
	"time"

	"github.com/davidbowland/emails-email-api/internal/htmlstrip"
	"github.com/davidbowland/emails-email-api/internal/record"
)

var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}

// ConvertToEmail builds the summary record for a parsed message. Every
// field has a defined default, so any parsed message yields a record.
func ConvertToEmail(parsed *Parsed) record.Email {
	from := "unknown"
	if len(parsed.From) > 0 {
		from = parsed.From[0].Address
	}

	timestamp := nowMillis()
	if !parsed.Date.IsZero() {
		timestamp = parsed.Date.UnixMilli()
	}

	return record.Email{
		Attachments: summaryAttachments(parsed.Attachments),
		BCC:         record.BareAddresses(toRecord(parsed.BCC)),
		CC:          record.BareAddresses(toRecord(parsed.CC)),
		From:        from,
		Subject:     parsed.Subject,
		Timestamp:   timestamp,
		To:          bareOrEmpty(parsed.To),
		Viewed:      false,
	}
}

// ConvertToContents builds the full contents record for a parsed message.
// Address groups carry computed display forms; a message with only one body
// form gets the other synthesized from it. The message names itself via its
// own Message-ID header; messageID is the fallback for messages without one.
func ConvertToContents(messageID string, parsed *Parsed) record.EmailContents {
	bodyText := parsed.BodyText
	if bodyText == "" && parsed.BodyHTML != "" {
		bodyText = htmlstrip.Text(parsed.BodyHTML)
	}
	bodyHTML := parsed.BodyHTML
	if bodyHTML == "" && parsed.BodyText != "" {
		bodyHTML = textAsHTML(parsed.BodyText)
	}

	id := parsed.MessageID
	if id == "" {
		id = messageID
	}

	contents := record.EmailContents{
		Attachments:    summaryAttachments(parsed.Attachments),
		BodyHTML:       bodyHTML,
		BodyText:       bodyText,
		FromAddress:    record.FormatAddresses(toRecord(parsed.From)),
		Headers:        headersOrEmpty(parsed.Headers),
		ID:             id,
		InReplyTo:      parsed.InReplyTo,
		References:     referencesOrEmpty(parsed.References),
		ReplyToAddress: record.FormatReplyTo(toRecord(parsed.ReplyTo)),
		Subject:        parsed.Subject,
	}

	if !parsed.Date.IsZero() {
		contents.Date = parsed.Date.Format(time.RFC1123Z)
	}
	if len(parsed.To) > 0 {
		group := record.FormatAddresses(toRecord(parsed.To))
		contents.ToAddress = &group
	}
	if len(parsed.CC) > 0 {
		group := record.FormatAddresses(toRecord(parsed.CC))
		contents.CCAddress = &group
	}
	if len(parsed.BCC) > 0 {
		group := record.FormatAddresses(toRecord(parsed.BCC))
		contents.BCCAddress = &group
	}

	return contents
}

// summaryAttachments reduces parsed attachments to their summary shape.
// The Content-ID names the attachment when present, the body checksum
// otherwise.
func summaryAttachments(attachments []Attachment) []record.EmailAttachment {
	if len(attachments) == 0 {
		return nil
	}
	out := make([]record.EmailAttachment, len(attachments))
	for i, attachment := range attachments {
		filename := attachment.Filename
		if filename == "" {
			filename = "unknown"
		}
		id := attachment.ContentID
		if id == "" {
			id = attachment.Checksum
		}
		out[i] = record.EmailAttachment{
			Filename: filename,
			ID:       id,
			Size:     attachment.Size,
			Type:     attachment.ContentType,
		}
	}
	return out
}

func toRecord(addrs []Address) []record.EmailAddress {
	if addrs == nil {
		return nil
	}
	out := make([]record.EmailAddress, len(addrs))
	for i, addr := range addrs {
		out[i] = record.EmailAddress{Address: addr.Address, Name: addr.Name}
	}
	return out
}

func bareOrEmpty(addrs []Address) []string {
	bare := record.BareAddresses(toRecord(addrs))
	if bare == nil {
		return []string{}
	}
	return bare
}

func referencesOrEmpty(references []string) []string {
	if references == nil {
		return []string{}
	}
	return references
}

func headersOrEmpty(headers map[string]string) map[string]string {
	if headers == nil {
		return map[string]string{}
	}
	return headers
}

// textAsHTML renders a plain-text body as minimal HTML, paragraph per line.
func textAsHTML(text string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</p>")
	}
	return b.String()
}
