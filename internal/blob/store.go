// Package blob provides email body and attachment storage on S3. Objects
// are keyed as {direction}/{accountId}/{messageId} for message bodies and
// {direction}/{accountId}/{messageId}/{attachmentId} for attachments;
// staged uploads live under attachments/{accountId}/{uuid}.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrObjectNotFound marks a key absent from the blob store.
var ErrObjectNotFound = errors.New("object not found")

// PresignExpiry bounds every presigned URL handed to clients.
const PresignExpiry = 5 * time.Minute

// S3API abstracts the S3 operations used by the store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner abstracts presigned URL generation.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Object is a fetched blob with the metadata clients need to serve it.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Metadata    map[string]string
}

// Store implements blob operations on one S3 bucket.
type Store struct {
	client    S3API
	presigner Presigner
	bucket    string
}

// NewStore creates a Store for the given bucket.
func NewStore(client S3API, presigner Presigner, bucket string) *Store {
	return &Store{client: client, presigner: presigner, bucket: bucket}
}

// Get fetches one object. The caller owns the returned body.
func (s *Store) Get(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return &Object{
		Body:        out.Body,
		ContentType: aws.ToString(out.ContentType),
		Metadata:    out.Metadata,
	}, nil
}

// Put stores one object.
func (s *Store) Put(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Copy duplicates an object within the bucket.
func (s *Store) Copy(ctx context.Context, sourceKey, destKey string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + sourceKey),
		Key:        aws.String(destKey),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return fmt.Errorf("%s: %w", sourceKey, ErrObjectNotFound)
		}
		return fmt.Errorf("copy %s to %s: %w", sourceKey, destKey, err)
	}
	return nil
}

// Delete removes one object. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a time-limited download URL for one object.
func (s *Store) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign get %s: %w", key, err)
	}
	return req.URL, nil
}

// PresignPut returns a time-limited upload URL for one object, binding the
// given metadata to the upload. The returned fields are the signed headers
// the uploader must send for the signature to match.
func (s *Store) PresignPut(ctx context.Context, key string, metadata map[string]string) (string, map[string]string, error) {
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Metadata: metadata,
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return "", nil, fmt.Errorf("presign put %s: %w", key, err)
	}
	fields := make(map[string]string, len(req.SignedHeader))
	for name, values := range req.SignedHeader {
		if len(values) > 0 {
			fields[name] = values[0]
		}
	}
	return req.URL, fields, nil
}

func isNoSuchKey(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
