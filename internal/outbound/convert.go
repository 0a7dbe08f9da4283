// Package outbound converts validated send requests into the canonical
// stored records.
package outbound

import (
	"time"

	"github.com/davidbowland/emails-email-api/internal/record"
)

// nowMillis is replaced in tests.
var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}

// ConvertToEmail reduces a send request to the summary record. Address lists
// drop display names at this granularity; to defaults to an empty array so
// cc or bcc may be the only non-empty list.
func ConvertToEmail(outbound record.EmailOutbound) record.Email {
	to := record.BareAddresses(outbound.To)
	if to == nil {
		to = []string{}
	}
	return record.Email{
		Attachments: summaryAttachments(outbound.Attachments),
		BCC:         record.BareAddresses(outbound.BCC),
		CC:          record.BareAddresses(outbound.CC),
		From:        outbound.From.Address,
		Subject:     outbound.Subject,
		Timestamp:   nowMillis(),
		To:          to,
		Viewed:      false,
	}
}

// ConvertToContents builds the full contents record for a sent email. The
// toAddress group is always present (an empty wrapper when to is absent)
// while ccAddress and bccAddress stay unset when absent; stored records
// depend on that asymmetry.
func ConvertToContents(messageID string, outbound record.EmailOutbound, timestamp int64) record.EmailContents {
	contents := record.EmailContents{
		Attachments:    summaryAttachments(outbound.Attachments),
		BodyHTML:       outbound.HTML,
		BodyText:       outbound.Text,
		Date:           time.UnixMilli(timestamp).UTC().Format(time.RFC1123Z),
		FromAddress:    record.WrapAddresses([]record.EmailAddress{outbound.From}),
		Headers:        headersOrEmpty(outbound.Headers),
		ID:             messageID,
		InReplyTo:      outbound.InReplyTo,
		References:     referencesOrEmpty(outbound.References),
		ReplyToAddress: record.WrapReplyTo(outbound.ReplyTo),
		Subject:        outbound.Subject,
	}

	toGroup := record.WrapAddresses(outbound.To)
	contents.ToAddress = &toGroup

	if outbound.CC != nil {
		ccGroup := record.WrapAddresses(outbound.CC)
		contents.CCAddress = &ccGroup
	}
	if outbound.BCC != nil {
		bccGroup := record.WrapAddresses(outbound.BCC)
		contents.BCCAddress = &bccGroup
	}

	return contents
}

// summaryAttachments maps outbound attachments to the summary shape using
// the same identity scheme as the inbound parser: cid when present,
// checksum otherwise.
func summaryAttachments(attachments []record.OutboundAttachment) []record.EmailAttachment {
	if attachments == nil {
		return nil
	}
	out := make([]record.EmailAttachment, len(attachments))
	for i, attachment := range attachments {
		filename := attachment.Filename
		if filename == "" {
			filename = "unknown"
		}
		id := attachment.CID
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
