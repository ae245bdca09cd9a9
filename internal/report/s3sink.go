// Package report provides a fan-out sink that uploads a finished crawler
// or pagerank report to S3, alongside (never instead of) the usual
// stdout/file write. Nothing is ever read back from S3: this is pure
// output fan-out, not a persistence layer, so it does not touch the
// no-cross-run-persistence non-goal.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ParseS3URI splits an "s3://bucket/key" URI into its bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	const scheme = "s3://"
	if !strings.HasPrefix(uri, scheme) {
		return "", "", fmt.Errorf("report: %q is not an s3:// URI", uri)
	}
	rest := uri[len(scheme):]
	i := strings.IndexByte(rest, '/')
	if i < 0 || i == 0 || i == len(rest)-1 {
		return "", "", fmt.Errorf("report: %q must be of the form s3://bucket/key", uri)
	}
	return rest[:i], rest[i+1:], nil
}

// UploadToS3 uploads data to the bucket/key encoded in uri using the
// classic aws-sdk-go S3 client.
func UploadToS3(uri string, data []byte) error {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return err
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return fmt.Errorf("report: creating AWS session: %w", err)
	}

	client := s3.New(sess)
	_, err = client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("report: uploading to s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}
