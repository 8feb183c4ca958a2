// Package archive uploads a snapshot of the security logs to S3-compatible
// object storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/authgate/internal/clockx"
	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	"github.com/dmitrijs2005/authgate/internal/server/repositories/logs"
	"github.com/google/uuid"
)

// Uploader is the subset of *s3.Client used here.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Options struct {
	AccessKey    string
	SecretKey    string
	Region       string
	BaseEndpoint string
}

var loadDefaultAWSConfig = config.LoadDefaultConfig

// NewS3Client builds a client with static credentials. A BaseEndpoint
// switches to path-style addressing for MinIO and similar servers.
func NewS3Client(ctx context.Context, o S3Options) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(o.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(opt *s3.Options) {
		if o.BaseEndpoint != "" {
			opt.BaseEndpoint = aws.String(o.BaseEndpoint)
			opt.UsePathStyle = true
		}
	}), nil
}

// Sources are the streams included in an archive.
type Sources struct {
	Threats    logs.Repository[models.SecurityEvent]
	RateLimits logs.Repository[models.RateLimitEvent]
	IPBlocks   logs.Repository[models.IPBlockEvent]
	Alerts     logs.Repository[models.Alert]
}

// Snapshot is the uploaded document.
type Snapshot struct {
	ArchivedAt time.Time               `json:"archived_at"`
	ArchivedBy string                  `json:"archived_by"`
	Threats    []models.SecurityEvent  `json:"threats"`
	RateLimits []models.RateLimitEvent `json:"rate_limits"`
	IPBlocks   []models.IPBlockEvent   `json:"ip_blocks"`
	Alerts     []models.Alert          `json:"alerts"`
}

type Result struct {
	Bucket string         `json:"bucket"`
	Key    string         `json:"key"`
	Counts map[string]int `json:"counts"`
}

type Archiver struct {
	bucket  string
	client  Uploader
	sources Sources
	clock   clockx.Clock
	logger  logging.Logger
}

// New returns an Archiver. A nil client yields an Archiver whose Archive
// always fails with common.ErrArchiveDisabled.
func New(bucket string, client Uploader, sources Sources, clock clockx.Clock, logger logging.Logger) *Archiver {
	return &Archiver{
		bucket:  bucket,
		client:  client,
		sources: sources,
		clock:   clock,
		logger:  logger.With("module", "archive"),
	}
}

func (a *Archiver) Enabled() bool { return a != nil && a.client != nil }

// ObjectKey returns security-logs/YYYY/MM/DD/<uuid>.json for t.
func ObjectKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("security-logs/%04d/%02d/%02d/%s.json", t.Year(), t.Month(), t.Day(), uuid.New())
}

// Archive uploads every entry currently held in the security streams.
func (a *Archiver) Archive(ctx context.Context, actor string) (*Result, error) {
	if !a.Enabled() {
		return nil, common.ErrArchiveDisabled
	}

	snap := Snapshot{ArchivedAt: a.clock.Now(), ArchivedBy: actor}
	var err error
	if snap.Threats, err = a.sources.Threats.Tail(ctx, 0); err != nil {
		return nil, fmt.Errorf("read threats: %w", err)
	}
	if snap.RateLimits, err = a.sources.RateLimits.Tail(ctx, 0); err != nil {
		return nil, fmt.Errorf("read rate limits: %w", err)
	}
	if snap.IPBlocks, err = a.sources.IPBlocks.Tail(ctx, 0); err != nil {
		return nil, fmt.Errorf("read ip blocks: %w", err)
	}
	if snap.Alerts, err = a.sources.Alerts.Tail(ctx, 0); err != nil {
		return nil, fmt.Errorf("read alerts: %w", err)
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	key := ObjectKey(snap.ArchivedAt)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}

	res := &Result{
		Bucket: a.bucket,
		Key:    key,
		Counts: map[string]int{
			logs.StreamThreats.Name:    len(snap.Threats),
			logs.StreamRateLimits.Name: len(snap.RateLimits),
			logs.StreamIPBlocks.Name:   len(snap.IPBlocks),
			logs.StreamAlerts.Name:     len(snap.Alerts),
		},
	}
	a.logger.Info(ctx, "security logs archived", "bucket", a.bucket, "key", key, "by", actor)
	return res, nil
}
