package cloud

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const reportURLExpiry = time.Hour

// ReportArchive stores generated reports in an S3 bucket.
type ReportArchive struct {
	svc     *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// ArchivedReport is one stored report with a short-lived download link.
type ArchivedReport struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	URL          string    `json:"url"`
}

func NewReportArchive(ctx context.Context, region, bucket string) (*ReportArchive, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	svc := s3.NewFromConfig(cfg)
	return &ReportArchive{svc: svc, presign: s3.NewPresignClient(svc), bucket: bucket}, nil
}

// PutReport uploads a JSON report under key.
func (a *ReportArchive) PutReport(ctx context.Context, key string, body []byte) error {
	_, err := a.svc.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"uploaded-at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

// ListReports returns every report under prefix with a presigned GET URL.
func (a *ReportArchive) ListReports(ctx context.Context, prefix string) ([]ArchivedReport, error) {
	out := []ArchivedReport{}
	paginator := s3.NewListObjectsV2Paginator(a.svc, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    aws.String(key),
			}, func(opts *s3.PresignOptions) {
				opts.Expires = reportURLExpiry
			})
			if err != nil {
				return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
			}
			out = append(out, ArchivedReport{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				URL:          req.URL,
			})
		}
	}
	return out, nil
}
