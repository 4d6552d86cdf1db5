package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/amlguard/compliance-api/model"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// SpacesArchiver exports usage events to S3-compatible object storage
// (DigitalOcean Spaces) before retention pruning removes them from the
// database. Keys are laid out by year/month so archived audit data stays
// browsable.
type SpacesArchiver struct {
	s3Client *s3.S3
	bucket   string
}

// Config holds the object storage credentials and location
type Config struct {
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Endpoint  string
}

// NewSpacesArchiver creates a new archiver
func NewSpacesArchiver(config Config) (*SpacesArchiver, error) {
	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		),
		Endpoint:         aws.String(config.Endpoint),
		Region:           aws.String(config.Region),
		S3ForcePathStyle: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Spaces session: %w", err)
	}

	return &SpacesArchiver{
		s3Client: s3.New(sess),
		bucket:   config.Bucket,
	}, nil
}

// ArchiveEvents uploads the events as one NDJSON object and returns the
// object key. The upload is private; archived events may contain caller IPs.
func (a *SpacesArchiver) ArchiveEvents(ctx context.Context, events []model.UsageEvent, cutoff time.Time) (string, error) {
	if len(events) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range events {
		if err := enc.Encode(&events[i]); err != nil {
			return "", fmt.Errorf("failed to encode usage event: %w", err)
		}
	}

	key := fmt.Sprintf("usage-archive/%04d/%02d/usage-events-%s.ndjson",
		cutoff.Year(), int(cutoff.Month()), time.Now().UTC().Format("20060102T150405Z"))

	_, err := a.s3Client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        aws.ReadSeekCloser(bytes.NewReader(buf.Bytes())),
		ACL:         aws.String("private"),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload usage archive: %w", err)
	}

	return key, nil
}
