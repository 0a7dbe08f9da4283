// Package attachments orchestrates the attachment lifecycle: staging
// uploads ahead of send, promoting staged blobs onto sent messages, and
// serving and cleaning up stored attachments.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/davidbowland/emails-email-api/internal/blob"
	"github.com/davidbowland/emails-email-api/internal/record"
)

// ErrStagedMissing marks a send request referencing an upload that was
// never staged or has expired.
var ErrStagedMissing = errors.New("staged attachment missing")

// BlobStore is the blob-store surface the manager consumes.
type BlobStore interface {
	Copy(ctx context.Context, sourceKey, destKey string) error
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (*blob.Object, error)
	PresignGet(ctx context.Context, key string) (string, error)
	PresignPut(ctx context.Context, key string, metadata map[string]string) (string, map[string]string, error)
}

// Manager implements the attachment lifecycle over one blob store.
type Manager struct {
	store  BlobStore
	logger *slog.Logger

	// abortOnCopyFailure makes Promote fail the send when a staged blob
	// cannot be copied; otherwise the failure is logged and the
	// attachment dropped from the message.
	abortOnCopyFailure bool

	newUploadID func() string
}

// NewManager creates a Manager.
func NewManager(store BlobStore, logger *slog.Logger, abortOnCopyFailure bool) *Manager {
	return &Manager{
		store:              store,
		logger:             logger,
		abortOnCopyFailure: abortOnCopyFailure,
		newUploadID:        uuid.NewString,
	}
}

// StagedUpload is a presigned upload slot for one attachment. Fields are
// the signed headers the client must send alongside the PUT.
type StagedUpload struct {
	ID     string            `json:"id"`
	URL    string            `json:"url"`
	Fields map[string]string `json:"fields"`
}

// StageUpload allocates a staging slot and returns a presigned upload URL
// bound to the caller-declared metadata.
func (m *Manager) StageUpload(ctx context.Context, accountID string, metadata map[string]string) (*StagedUpload, error) {
	uploadID := m.newUploadID()
	url, fields, err := m.store.PresignPut(ctx, blob.StagingKey(accountID, uploadID), metadata)
	if err != nil {
		return nil, fmt.Errorf("stage upload for %s: %w", accountID, err)
	}
	return &StagedUpload{ID: uploadID, URL: url, Fields: fields}, nil
}

// Promote copies each staged attachment onto its sent-message key and
// returns the attachments that made it. Staged blobs are addressed by CID
// when present, checksum otherwise. A copy failure either aborts the send
// or drops the attachment, per configuration.
func (m *Manager) Promote(ctx context.Context, accountID, messageID string, attachments []record.OutboundAttachment) ([]record.OutboundAttachment, error) {
	promoted := make([]record.OutboundAttachment, 0, len(attachments))
	for _, attachment := range attachments {
		attachmentID := stagedID(attachment)
		if attachmentID == "" {
			if m.abortOnCopyFailure {
				return nil, fmt.Errorf("%w: attachment has no id", ErrStagedMissing)
			}
			m.logger.WarnContext(ctx, "dropping attachment without id",
				"accountId", accountID, "messageId", messageID)
			continue
		}

		source := blob.StagingKey(accountID, attachmentID)
		dest := blob.AttachmentKey(blob.DirectionSent, accountID, messageID, attachmentID)
		if err := m.store.Copy(ctx, source, dest); err != nil {
			if m.abortOnCopyFailure {
				return nil, fmt.Errorf("promote attachment %s: %w", attachmentID, err)
			}
			m.logger.ErrorContext(ctx, "dropping attachment after copy failure",
				"accountId", accountID, "messageId", messageID,
				"attachmentId", attachmentID, "error", err)
			continue
		}
		promoted = append(promoted, attachment)
	}
	return promoted, nil
}

// DiscardStaged removes staged blobs after a send, successful or not.
// Failures are logged only.
func (m *Manager) DiscardStaged(ctx context.Context, accountID string, attachments []record.OutboundAttachment) {
	for _, attachment := range attachments {
		attachmentID := stagedID(attachment)
		if attachmentID == "" {
			continue
		}
		if err := m.store.Delete(ctx, blob.StagingKey(accountID, attachmentID)); err != nil {
			m.logger.ErrorContext(ctx, "failed to delete staged attachment",
				"accountId", accountID, "attachmentId", attachmentID, "error", err)
		}
	}
}

// Content is a fetched attachment with sanitized serving metadata.
type Content struct {
	Body        *blob.Object
	ContentType string
	Filename    string
	Size        string
}

// Retrieve fetches one stored attachment and sanitizes the metadata that
// will be reflected into response headers.
func (m *Manager) Retrieve(ctx context.Context, direction, accountID, messageID, attachmentID string) (*Content, error) {
	key := blob.AttachmentKey(direction, accountID, messageID, attachmentID)
	object, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	filename := object.Metadata["filename"]
	size := object.Metadata["size"]
	contentType := object.ContentType
	if contentType == "" {
		contentType = object.Metadata["contenttype"]
	}

	return &Content{
		Body:        object,
		ContentType: SanitizeContentType(contentType),
		Filename:    SanitizeFilename(filename),
		Size:        SanitizeSize(size),
	}, nil
}

// RetrieveURL returns a presigned download URL for one stored attachment.
func (m *Manager) RetrieveURL(ctx context.Context, direction, accountID, messageID, attachmentID string) (string, error) {
	return m.store.PresignGet(ctx, blob.AttachmentKey(direction, accountID, messageID, attachmentID))
}

// Cleanup removes a message body and all its attachment blobs
// concurrently. Blob deletes are best effort: failures are logged and
// never surfaced, since the metadata record is already gone.
func (m *Manager) Cleanup(ctx context.Context, direction, accountID, messageID string, attachments []record.EmailAttachment) {
	group, groupCtx := errgroup.WithContext(ctx)

	keys := make([]string, 0, len(attachments)+1)
	keys = append(keys, blob.MessageKey(direction, accountID, messageID))
	for _, attachment := range attachments {
		keys = append(keys, blob.AttachmentKey(direction, accountID, messageID, attachment.ID))
	}

	for _, key := range keys {
		key := key
		group.Go(func() error {
			if err := m.store.Delete(groupCtx, key); err != nil {
				m.logger.ErrorContext(groupCtx, "failed to delete blob",
					"key", key, "error", err)
			}
			return nil
		})
	}
	_ = group.Wait()
}

func stagedID(attachment record.OutboundAttachment) string {
	if attachment.CID != "" {
		return attachment.CID
	}
	return attachment.Checksum
}

var (
	filenameUnsafe    = regexp.MustCompile(`[^\w.]+`)
	sizeNonDigit      = regexp.MustCompile(`\D`)
	contentTypeUnsafe = regexp.MustCompile(`[^\w./-]+`)
)

// SanitizeFilename collapses header-unsafe runs in a stored filename to
// underscores.
func SanitizeFilename(filename string) string {
	return filenameUnsafe.ReplaceAllString(filename, "_")
}

// SanitizeSize strips everything but digits from a stored size value.
func SanitizeSize(size string) string {
	return sizeNonDigit.ReplaceAllString(size, "")
}

// SanitizeContentType strips header-unsafe characters from a stored
// content type, falling back to octet-stream when nothing survives.
func SanitizeContentType(contentType string) string {
	cleaned := contentTypeUnsafe.ReplaceAllString(contentType, "")
	if strings.TrimSpace(cleaned) == "" {
		return "application/octet-stream"
	}
	return cleaned
}
