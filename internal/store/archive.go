package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/apresai/pitchroom/internal/session"
)

// Archive writes finished sessions to S3 as JSON documents. It implements
// session.Archiver.
type Archive struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string // e.g. "https://pitches.apresai.dev"
}

// NewArchive creates an S3 archive handler.
func NewArchive(client *s3.Client, bucket, cdnBaseURL string) *Archive {
	return &Archive{client: client, bucket: bucket, cdnBaseURL: cdnBaseURL}
}

// ArchiveSession uploads the full session document and returns its key, or
// its public URL when a CDN base is configured.
func (a *Archive) ArchiveSession(ctx context.Context, snap session.Snapshot) (string, error) {
	key := "sessions/" + snap.ID + ".json"

	body, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session document: %w", err)
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &a.bucket,
		Key:           &key,
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	if a.cdnBaseURL != "" {
		return a.cdnBaseURL + "/" + key, nil
	}
	return key, nil
}
