package blob

// Directions partition the bucket by email lifecycle stage.
const (
	DirectionReceived    = "received"
	DirectionSent        = "sent"
	DirectionAttachments = "attachments"
)

// MessageKey is the object key for a message body.
func MessageKey(direction, accountID, messageID string) string {
	return direction + "/" + accountID + "/" + messageID
}

// AttachmentKey is the object key for one attachment of a message.
func AttachmentKey(direction, accountID, messageID, attachmentID string) string {
	return direction + "/" + accountID + "/" + messageID + "/" + attachmentID
}

// StagingKey is the object key for an attachment staged ahead of send.
func StagingKey(accountID, uploadID string) string {
	return DirectionAttachments + "/" + accountID + "/" + uploadID
}
