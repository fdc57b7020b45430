// Package archive stores generated invoices in S3 compatible object storage.
package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/storage"
)

var tracer = otel.Tracer("github.com/platinummonkey/finance/pkg/storage/archive")

// ObjectPutter is the subset of the S3 API used by the archiver
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes one JSON object per invoice under
// <prefix>/<provider>/<user>/<invoice id>.json
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Archiver creates an archiver from storage configuration
func NewS3Archiver(ctx context.Context, cfg storage.Config) (*S3Archiver, error) {
	var (
		awsConfig aws.Config
		err       error
	)

	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		// Use static credentials (for MinIO or AWS with explicit keys)
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.S3Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKey,
				cfg.S3SecretKey,
				"",
			)),
		)
	} else {
		// Use default credential chain (IAM roles, env vars, etc.)
		awsConfig, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.S3Region))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return NewS3ArchiverWithClient(client, cfg.S3Bucket, cfg.S3Prefix), nil
}

// NewS3ArchiverWithClient creates an archiver over an existing client
func NewS3ArchiverWithClient(client ObjectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Key returns the object key of an invoice
func (a *S3Archiver) Key(invoice *models.Invoice) string {
	return path.Join(a.prefix,
		url.PathEscape(invoice.ProviderID),
		url.PathEscape(invoice.UserID),
		invoice.ID+".json")
}

// ArchiveInvoice implements storage.InvoiceArchive
func (a *S3Archiver) ArchiveInvoice(ctx context.Context, invoice *models.Invoice) error {
	key := a.Key(invoice)
	ctx, span := tracer.Start(ctx, "S3.ArchiveInvoice",
		trace.WithAttributes(
			attribute.String("s3.operation", "PutObject"),
			attribute.String("s3.bucket", a.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	data, err := json.Marshal(invoice)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to marshal invoice")
		return fmt.Errorf("failed to marshal invoice: %w", err)
	}

	hash := sha256.Sum256(data)
	span.SetAttributes(attribute.Int("content.size", len(data)))

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
			"invoice-state":   string(invoice.State),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		return fmt.Errorf("failed to upload invoice %s: %w", invoice.ID, err)
	}

	span.SetStatus(codes.Ok, "invoice archived")
	return nil
}
