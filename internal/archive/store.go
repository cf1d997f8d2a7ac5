package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kestrelhq/callflow/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store archives end-of-call reports to S3. Each report lands verbatim under
// a date-partitioned key; a monthly JSONL manifest indexes the month's
// reports for offline analysis.
type Store struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured (bucket is set).
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ManifestEntry is one JSONL line of the monthly manifest.
type ManifestEntry struct {
	ProviderCallID string `json:"provider_call_id"`
	ContactID      string `json:"contact_id,omitempty"`
	Outcome        string `json:"outcome,omitempty"`
	S3Key          string `json:"s3_key"`
	ArchivedAt     string `json:"archived_at"`
}

// ArchiveReport writes the raw report bytes to S3 keyed by provider call id
// and appends a manifest line. The report bytes are stored exactly as the
// provider delivered them.
func (s *Store) ArchiveReport(ctx context.Context, entry ManifestEntry, report []byte, at time.Time) error {
	if !s.Enabled() {
		return nil
	}
	if entry.ProviderCallID == "" {
		return fmt.Errorf("archive: provider call id is required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s3Key := fmt.Sprintf("call-reports/v1/by-date/%d/%02d/%02d/%s.json",
		at.Year(), at.Month(), at.Day(), entry.ProviderCallID)

	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(report),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", s3Key, err)
	}

	s.logger.Info("archived call report to S3",
		"provider_call_id", entry.ProviderCallID,
		"s3_key", s3Key,
	)

	entry.S3Key = s3Key
	entry.ArchivedAt = at.Format(time.RFC3339)
	if err := s.AppendManifest(ctx, entry); err != nil {
		// The report itself is already archived.
		s.logger.Warn("failed to append manifest", "error", err, "provider_call_id", entry.ProviderCallID)
	}

	return nil
}

// AppendManifest appends a JSONL line to the monthly manifest file.
// Uses read-modify-write since S3 doesn't support append.
func (s *Store) AppendManifest(ctx context.Context, entry ManifestEntry) error {
	if !s.Enabled() {
		return nil
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}

	now := time.Now().UTC()
	manifestKey := fmt.Sprintf("call-reports/v1/manifests/%d-%02d.jsonl", now.Year(), now.Month())

	var existing []byte
	getResp, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(manifestKey),
	})
	if err != nil {
		if !isNotFoundErr(err) {
			s.logger.Debug("manifest read failed, starting fresh", "key", manifestKey, "error", err)
		}
	} else {
		existing, _ = io.ReadAll(getResp.Body)
		getResp.Body.Close()
	}

	var buf bytes.Buffer
	if len(existing) > 0 {
		buf.Write(existing)
		if existing[len(existing)-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.Write(line)
	buf.WriteByte('\n')

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}

	return nil
}

// isNotFoundErr checks if the error is an S3 NoSuchKey error. String check
// since errors.As against the wrapped S3 types can be tricky.
func isNotFoundErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") || strings.Contains(msg, "404") || strings.Contains(msg, "not found")
}
