package attachments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/davidbowland/emails-email-api/internal/blob"
	"github.com/davidbowland/emails-email-api/internal/record"
)

type fakeStore struct {
	mu      sync.Mutex
	copied  [][2]string
	deleted []string

	copyErr    map[string]error
	deleteErr  error
	getObject  *blob.Object
	getErr     error
	presignURL    string
	presignFields map[string]string
	presignErr    error

	presignPutKey      string
	presignPutMetadata map[string]string
}

func (f *fakeStore) Copy(_ context.Context, sourceKey, destKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.copyErr[sourceKey]; ok {
		return err
	}
	f.copied = append(f.copied, [2]string{sourceKey, destKey})
	return nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	return f.deleteErr
}

func (f *fakeStore) Get(_ context.Context, _ string) (*blob.Object, error) {
	return f.getObject, f.getErr
}

func (f *fakeStore) PresignGet(_ context.Context, _ string) (string, error) {
	return f.presignURL, f.presignErr
}

func (f *fakeStore) PresignPut(_ context.Context, key string, metadata map[string]string) (string, map[string]string, error) {
	f.presignPutKey = key
	f.presignPutMetadata = metadata
	return f.presignURL, f.presignFields, f.presignErr
}

func newTestManager(store *fakeStore, abort bool) *Manager {
	m := NewManager(store, slog.New(slog.NewTextHandler(io.Discard, nil)), abort)
	m.newUploadID = func() string { return "upload-1" }
	return m
}

func TestStageUpload(t *testing.T) {
	store := &fakeStore{
		presignURL:    "https://signed.example.com/upload",
		presignFields: map[string]string{"Host": "signed.example.com"},
	}
	m := newTestManager(store, false)

	staged, err := m.StageUpload(context.Background(), "any", map[string]string{"filename": "photo.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if staged.ID != "upload-1" {
		t.Errorf("id = %s", staged.ID)
	}
	if staged.URL != "https://signed.example.com/upload" {
		t.Errorf("url = %s", staged.URL)
	}
	if staged.Fields["Host"] != "signed.example.com" {
		t.Errorf("fields = %v", staged.Fields)
	}
	if store.presignPutKey != "attachments/any/upload-1" {
		t.Errorf("key = %s", store.presignPutKey)
	}
	if store.presignPutMetadata["filename"] != "photo.jpg" {
		t.Errorf("metadata = %v", store.presignPutMetadata)
	}
}

func TestPromoteCopiesStagedBlobs(t *testing.T) {
	store := &fakeStore{}
	m := newTestManager(store, false)

	attachments := []record.OutboundAttachment{
		{CID: "cid-1"},
		{Checksum: "sum-2"},
	}
	promoted, err := m.Promote(context.Background(), "any", "message-1", attachments)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(promoted) != 2 {
		t.Fatalf("promoted = %d", len(promoted))
	}
	if store.copied[0] != [2]string{"attachments/any/cid-1", "sent/any/message-1/cid-1"} {
		t.Errorf("first copy = %v", store.copied[0])
	}
	if store.copied[1] != [2]string{"attachments/any/sum-2", "sent/any/message-1/sum-2"} {
		t.Errorf("second copy = %v", store.copied[1])
	}
}

func TestPromoteDropsFailedCopies(t *testing.T) {
	store := &fakeStore{copyErr: map[string]error{
		"attachments/any/cid-1": blob.ErrObjectNotFound,
	}}
	m := newTestManager(store, false)

	attachments := []record.OutboundAttachment{
		{CID: "cid-1"},
		{CID: "cid-2"},
	}
	promoted, err := m.Promote(context.Background(), "any", "message-1", attachments)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(promoted) != 1 || promoted[0].CID != "cid-2" {
		t.Errorf("promoted = %v", promoted)
	}
}

func TestPromoteAbortsWhenStrict(t *testing.T) {
	store := &fakeStore{copyErr: map[string]error{
		"attachments/any/cid-1": blob.ErrObjectNotFound,
	}}
	m := newTestManager(store, true)

	_, err := m.Promote(context.Background(), "any", "message-1", []record.OutboundAttachment{{CID: "cid-1"}})
	if !errors.Is(err, blob.ErrObjectNotFound) {
		t.Errorf("err = %v, want copy failure", err)
	}
}

func TestDiscardStagedIgnoresFailures(t *testing.T) {
	store := &fakeStore{deleteErr: errors.New("denied")}
	m := newTestManager(store, false)

	m.DiscardStaged(context.Background(), "any", []record.OutboundAttachment{{CID: "cid-1"}, {Checksum: "sum-2"}})
	if len(store.deleted) != 2 {
		t.Errorf("deleted = %v", store.deleted)
	}
}

func TestRetrieveSanitizesMetadata(t *testing.T) {
	store := &fakeStore{getObject: &blob.Object{
		Body:        io.NopCloser(strings.NewReader("bytes")),
		ContentType: "image/jpeg; charset=binary",
		Metadata: map[string]string{
			"filename": `photo "of" cat.jpg`,
			"size":     "12,345 bytes",
		},
	}}
	m := newTestManager(store, false)

	content, err := m.Retrieve(context.Background(), blob.DirectionReceived, "any", "message-1", "att-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content.Filename != "photo_of_cat.jpg" {
		t.Errorf("filename = %q", content.Filename)
	}
	if content.Size != "12345" {
		t.Errorf("size = %q", content.Size)
	}
	if content.ContentType != "image/jpegcharsetbinary" {
		t.Errorf("content type = %q", content.ContentType)
	}
}

func TestRetrieveNotFound(t *testing.T) {
	store := &fakeStore{getErr: blob.ErrObjectNotFound}
	m := newTestManager(store, false)

	if _, err := m.Retrieve(context.Background(), blob.DirectionReceived, "any", "message-1", "missing"); !errors.Is(err, blob.ErrObjectNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestCleanupDeletesBodyAndAttachments(t *testing.T) {
	store := &fakeStore{deleteErr: errors.New("partial failure")}
	m := newTestManager(store, false)

	m.Cleanup(context.Background(), blob.DirectionReceived, "any", "message-1", []record.EmailAttachment{
		{ID: "att-1"}, {ID: "att-2"},
	})

	sort.Strings(store.deleted)
	want := []string{
		"received/any/message-1",
		"received/any/message-1/att-1",
		"received/any/message-1/att-2",
	}
	if len(store.deleted) != len(want) {
		t.Fatalf("deleted = %v", store.deleted)
	}
	for i := range want {
		if store.deleted[i] != want[i] {
			t.Errorf("deleted[%d] = %s, want %s", i, store.deleted[i], want[i])
		}
	}
}

func TestSanitizers(t *testing.T) {
	if got := SanitizeFilename("a b/c..exe"); got != "a_b_c..exe" {
		t.Errorf("filename = %q", got)
	}
	if got := SanitizeSize("about 1024"); got != "1024" {
		t.Errorf("size = %q", got)
	}
	if got := SanitizeContentType("<script>"); got != "script" {
		t.Errorf("content type = %q", got)
	}
	if got := SanitizeContentType("!!!"); got != "application/octet-stream" {
		t.Errorf("empty content type = %q", got)
	}
}
