// Package record defines the canonical stored shapes for accounts and
// emails, and the formatter that narrows untrusted input into them.
package record

import "encoding/json"

// EmailAddress is the canonical address unit all address fields converge to.
type EmailAddress struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// AddressGroup wraps an address list with its display renderings.
type AddressGroup struct {
	HTML  string         `json:"html"`
	Text  string         `json:"text"`
	Value []EmailAddress `json:"value"`
}

// ReplyToValue is an address entry in a reply-to group. Reply-to entries may
// carry a nested group, which is why reply-to uses a distinct wrapper.
type ReplyToValue struct {
	Address string   `json:"address"`
	Name    string   `json:"name"`
	Group   []string `json:"group,omitempty"`
}

// ReplyToGroup wraps reply-to addresses with their display form.
type ReplyToGroup struct {
	Display string         `json:"display"`
	Value   []ReplyToValue `json:"value"`
}

// Account holds a mailbox owner's forwarding and bounce configuration.
// ForwardTargets and BounceSenders are always arrays, possibly empty.
type Account struct {
	BounceSenders  []string `json:"bounceSenders"`
	ForwardTargets []string `json:"forwardTargets"`
	Name           string   `json:"name"`
}

// AccountBatch pairs an account record with its id for list responses.
type AccountBatch struct {
	Data Account `json:"data"`
	ID   string  `json:"id"`
}

// EmailAttachment is the summary-record view of an attachment. ID doubles as
// the blob-store object suffix.
type EmailAttachment struct {
	Filename string `json:"filename"`
	ID       string `json:"id"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
}

// Email is the summary record kept in the metadata store, keyed by
// (accountId, messageId).
type Email struct {
	Attachments []EmailAttachment `json:"attachments,omitempty"`
	BCC         []string          `json:"bcc,omitempty"`
	Bounced     bool              `json:"bounced,omitempty"`
	CC          []string          `json:"cc,omitempty"`
	From        string            `json:"from"`
	Subject     string            `json:"subject"`
	Timestamp   int64             `json:"timestamp"`
	To          []string          `json:"to"`
	Viewed      bool              `json:"viewed"`
}

// EmailBatch pairs an email summary with its keys for list responses.
type EmailBatch struct {
	AccountID string `json:"accountId"`
	Data      Email  `json:"data"`
	ID        string `json:"id"`
}

// EmailContents is the full record held in the blob store alongside the
// summary record. References is always an array.
type EmailContents struct {
	Attachments    []EmailAttachment `json:"attachments,omitempty"`
	BCCAddress     *AddressGroup     `json:"bccAddress,omitempty"`
	BodyHTML       string            `json:"bodyHtml"`
	BodyText       string            `json:"bodyText"`
	CCAddress      *AddressGroup     `json:"ccAddress,omitempty"`
	Date           string            `json:"date,omitempty"`
	FromAddress    AddressGroup      `json:"fromAddress"`
	Headers        map[string]string `json:"headers"`
	ID             string            `json:"id"`
	InReplyTo      string            `json:"inReplyTo,omitempty"`
	References     []string          `json:"references"`
	ReplyToAddress ReplyToGroup      `json:"replyToAddress"`
	Subject        string            `json:"subject,omitempty"`
	ToAddress      *AddressGroup     `json:"toAddress,omitempty"`
}

// OutboundAttachment is an attachment on a send request. Content passes
// through untouched; the staged blob is addressed by CID or Checksum.
type OutboundAttachment struct {
	Checksum           string            `json:"checksum,omitempty"`
	CID                string            `json:"cid,omitempty"`
	Content            json.RawMessage   `json:"content"`
	ContentDisposition string            `json:"contentDisposition"`
	ContentID          string            `json:"contentId,omitempty"`
	ContentType        string            `json:"contentType"`
	Filename           string            `json:"filename,omitempty"`
	HeaderLines        map[string]string `json:"headerLines"`
	Headers            map[string]string `json:"headers"`
	Related            bool              `json:"related,omitempty"`
	Size               int64             `json:"size"`
	Type               string            `json:"type"`
}

// EmailOutbound is a caller-submitted send request. It exists only for the
// duration of a send operation and is never persisted in this shape.
type EmailOutbound struct {
	Attachments []OutboundAttachment `json:"attachments,omitempty"`
	BCC         []EmailAddress       `json:"bcc,omitempty"`
	CC          []EmailAddress       `json:"cc,omitempty"`
	From        EmailAddress         `json:"from"`
	Headers     map[string]string    `json:"headers,omitempty"`
	HTML        string               `json:"html"`
	InReplyTo   string               `json:"inReplyTo,omitempty"`
	References  []string             `json:"references,omitempty"`
	ReplyTo     EmailAddress         `json:"replyTo"`
	Sender      EmailAddress         `json:"sender"`
	Subject     string               `json:"subject"`
	Text        string               `json:"text"`
	To          []EmailAddress       `json:"to"`
}

// BounceRequest is the payload handed to the send provider to bounce a
// received email.
type BounceRequest struct {
	BounceSender string   `json:"bounceSender"`
	BounceType   string   `json:"bounceType,omitempty"`
	MessageID    string   `json:"messageId"`
	Recipients   []string `json:"recipients"`
}
