package record

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ValidationError reports input that failed canonicalization. The message is
// safe to return to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}

// nowMillis is replaced in tests.
var nowMillis = func() int64 {
	return time.Now().UnixMilli()
}

// CoerceSize derives an integer size from a value that may be a number or a
// legacy string-typed size. Non-digit characters are stripped before parsing.
func CoerceSize(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var digits strings.Builder
	for _, r := range string(raw) {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	size, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return size, true
}

// stringList decodes an optional JSON field that must be an array of strings
// when present. Returns ok=false when the field is present but not such an
// array.
func stringList(raw json.RawMessage) ([]string, bool) {
	if isAbsent(raw) {
		return nil, true
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	return list, true
}

// addressList decodes an optional JSON field that must be an array of
// structured addresses when present.
func addressList(raw json.RawMessage) ([]EmailAddress, bool) {
	if isAbsent(raw) {
		return nil, true
	}
	var list []EmailAddress
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, false
	}
	return list, true
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

type rawAccount struct {
	BounceSenders  json.RawMessage `json:"bounceSenders"`
	ForwardTargets json.RawMessage `json:"forwardTargets"`
	Name           string          `json:"name"`
}

// FormatAccount narrows an untrusted account body into the canonical Account.
// Unrecognized fields are dropped.
func FormatAccount(body []byte) (Account, error) {
	var raw rawAccount
	if err := json.Unmarshal(body, &raw); err != nil {
		return Account{}, invalid("account must be a JSON object")
	}

	forwardTargets, ok := stringList(raw.ForwardTargets)
	if !ok || isAbsent(raw.ForwardTargets) {
		return Account{}, invalid("forwardTargets must be an array of email addresses")
	}
	bounceSenders, ok := stringList(raw.BounceSenders)
	if !ok || isAbsent(raw.BounceSenders) {
		return Account{}, invalid("bounceSenders must be an array of email addresses")
	}
	if raw.Name == "" {
		return Account{}, invalid("name must be defined")
	}

	return Account{
		BounceSenders:  bounceSenders,
		ForwardTargets: forwardTargets,
		Name:           raw.Name,
	}, nil
}

type rawEmailAttachment struct {
	Filename string          `json:"filename"`
	ID       string          `json:"id"`
	Size     json.RawMessage `json:"size"`
	Type     string          `json:"type"`
}

type rawEmail struct {
	Attachments json.RawMessage `json:"attachments"`
	BCC         json.RawMessage `json:"bcc"`
	CC          json.RawMessage `json:"cc"`
	From        string          `json:"from"`
	Subject     *string         `json:"subject"`
	Timestamp   int64           `json:"timestamp"`
	To          json.RawMessage `json:"to"`
}

// FormatEmail narrows an untrusted email body into the canonical summary
// Email. The timestamp defaults to now and viewed is forced false on create;
// the bounced flag can only be set by the bounce transition, never on write.
func FormatEmail(body []byte) (Email, error) {
	var raw rawEmail
	if err := json.Unmarshal(body, &raw); err != nil {
		return Email{}, invalid("email must be a JSON object")
	}

	to, ok := stringList(raw.To)
	if !ok {
		return Email{}, invalid("to must be an array of email addresses")
	}
	cc, ok := stringList(raw.CC)
	if !ok {
		return Email{}, invalid("cc must be an array of email addresses, when present")
	}
	bcc, ok := stringList(raw.BCC)
	if !ok {
		return Email{}, invalid("bcc must be an array of email addresses, when present")
	}
	if len(to) == 0 && len(cc) == 0 && len(bcc) == 0 {
		return Email{}, invalid("at least one of to, cc, or bcc must be non-empty")
	}
	if raw.From == "" {
		return Email{}, invalid("from must be specified")
	}
	if raw.Subject == nil {
		return Email{}, invalid("subject must be specified")
	}

	attachments, err := formatEmailAttachments(raw.Attachments)
	if err != nil {
		return Email{}, err
	}

	timestamp := raw.Timestamp
	if timestamp == 0 {
		timestamp = nowMillis()
	}
	if to == nil {
		to = []string{}
	}

	return Email{
		Attachments: attachments,
		BCC:         bcc,
		CC:          cc,
		From:        raw.From,
		Subject:     *raw.Subject,
		Timestamp:   timestamp,
		To:          to,
		Viewed:      false,
	}, nil
}

func formatEmailAttachments(raw json.RawMessage) ([]EmailAttachment, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var rawAttachments []rawEmailAttachment
	if err := json.Unmarshal(raw, &rawAttachments); err != nil {
		return nil, invalid("attachments must be an array of attachments, when present")
	}

	attachments := make([]EmailAttachment, len(rawAttachments))
	for i, attachment := range rawAttachments {
		if attachment.Filename == "" {
			return nil, invalid("filename is required for all attachments")
		}
		if attachment.ID == "" {
			return nil, invalid("id is required for all attachments")
		}
		size, ok := CoerceSize(attachment.Size)
		if !ok {
			return nil, invalid("size must be an integer for all attachments")
		}
		if attachment.Type == "" {
			return nil, invalid("type is required for all attachments")
		}
		attachments[i] = EmailAttachment{
			Filename: attachment.Filename,
			ID:       attachment.ID,
			Size:     size,
			Type:     attachment.Type,
		}
	}
	return attachments, nil
}

type rawOutboundAttachment struct {
	Checksum           string            `json:"checksum"`
	CID                string            `json:"cid"`
	Content            json.RawMessage   `json:"content"`
	ContentDisposition string            `json:"contentDisposition"`
	ContentID          string            `json:"contentId"`
	ContentType        string            `json:"contentType"`
	Filename           string            `json:"filename"`
	HeaderLines        json.RawMessage   `json:"headerLines"`
	Headers            json.RawMessage   `json:"headers"`
	Related            bool              `json:"related"`
	Size               json.RawMessage   `json:"size"`
	Type               string            `json:"type"`
}

type rawOutbound struct {
	Attachments json.RawMessage   `json:"attachments"`
	BCC         json.RawMessage   `json:"bcc"`
	CC          json.RawMessage   `json:"cc"`
	Headers     map[string]string `json:"headers"`
	HTML        *string           `json:"html"`
	InReplyTo   string            `json:"inReplyTo"`
	References  json.RawMessage   `json:"references"`
	Subject     *string           `json:"subject"`
	Text        *string           `json:"text"`
	To          json.RawMessage   `json:"to"`
}

// FormatEmailOutbound narrows an untrusted send request. The from, sender,
// and replyTo addresses are overwritten with the caller's verified identity:
// a sender may not spoof the account's outbound identity.
func FormatEmailOutbound(body []byte, from EmailAddress) (EmailOutbound, error) {
	var raw rawOutbound
	if err := json.Unmarshal(body, &raw); err != nil {
		return EmailOutbound{}, invalid("email must be a JSON object")
	}

	to, ok := addressList(raw.To)
	if !ok {
		return EmailOutbound{}, invalid("to must be an array of email addresses")
	}
	cc, ok := addressList(raw.CC)
	if !ok {
		return EmailOutbound{}, invalid("cc must be an array of email addresses, when present")
	}
	bcc, ok := addressList(raw.BCC)
	if !ok {
		return EmailOutbound{}, invalid("bcc must be an array of email addresses, when present")
	}
	if len(to) == 0 && len(cc) == 0 && len(bcc) == 0 {
		return EmailOutbound{}, invalid("at least one of to, cc, or bcc must be non-empty")
	}
	if raw.HTML == nil {
		return EmailOutbound{}, invalid("html must be specified")
	}
	references, ok := stringList(raw.References)
	if !ok {
		return EmailOutbound{}, invalid("references must be an array of message IDs, when present")
	}
	if raw.Subject == nil {
		return EmailOutbound{}, invalid("subject must be specified")
	}
	if raw.Text == nil {
		return EmailOutbound{}, invalid("text must be specified")
	}

	attachments, err := formatOutboundAttachments(raw.Attachments)
	if err != nil {
		return EmailOutbound{}, err
	}

	return EmailOutbound{
		Attachments: attachments,
		BCC:         bcc,
		CC:          cc,
		From:        from,
		Headers:     raw.Headers,
		HTML:        *raw.HTML,
		InReplyTo:   raw.InReplyTo,
		References:  references,
		ReplyTo:     from,
		Sender:      from,
		Subject:     *raw.Subject,
		Text:        *raw.Text,
		To:          to,
	}, nil
}

func formatOutboundAttachments(raw json.RawMessage) ([]OutboundAttachment, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var rawAttachments []rawOutboundAttachment
	if err := json.Unmarshal(raw, &rawAttachments); err != nil {
		return nil, invalid("attachments must be an array of attachments, when present")
	}

	attachments := make([]OutboundAttachment, len(rawAttachments))
	for i, attachment := range rawAttachments {
		if isAbsent(attachment.Content) {
			return nil, invalid("content is required for all attachments")
		}
		if attachment.ContentDisposition == "" {
			return nil, invalid("contentDisposition is required for all attachments")
		}
		if attachment.ContentType == "" {
			return nil, invalid("contentType is required for all attachments")
		}
		headerLines, ok := stringMap(attachment.HeaderLines)
		if !ok {
			return nil, invalid("headerLines is required for all attachments")
		}
		headers, ok := stringMap(attachment.Headers)
		if !ok {
			return nil, invalid("headers is required for all attachments")
		}
		size, ok := CoerceSize(attachment.Size)
		if !ok {
			return nil, invalid("size must be an integer for all attachments")
		}
		attachments[i] = OutboundAttachment{
			Checksum:           attachment.Checksum,
			CID:                attachment.CID,
			Content:            attachment.Content,
			ContentDisposition: attachment.ContentDisposition,
			ContentID:          attachment.ContentID,
			ContentType:        attachment.ContentType,
			Filename:           attachment.Filename,
			HeaderLines:        headerLines,
			Headers:            headers,
			Related:            attachment.Related,
			Size:               size,
			Type:               "attachment",
		}
	}
	return attachments, nil
}

// stringMap decodes a required JSON object of string values. Returns ok=false
// when the field is absent or not such an object.
func stringMap(raw json.RawMessage) (map[string]string, bool) {
	if isAbsent(raw) {
		return nil, false
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}
