// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package archive keeps a copy of job returns in S3.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"ray-launcher/pkg/logging"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// PutObjectAPI is the part of the S3 client the archiver uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver uploads files under s3://Bucket/Prefix/<batch-id>/.
type Archiver struct {
	Client PutObjectAPI
	Bucket string
	Prefix string
}

// New creates an Archiver using the default AWS credential chain.
func New(ctx context.Context, bucket, prefix, region string) (*Archiver, error) {
	if bucket == "" {
		return nil, errors.New("archive bucket must not be empty")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Archiver{
		Client: s3.NewFromConfig(cfg),
		Bucket: bucket,
		Prefix: prefix,
	}, nil
}

// Key returns the object key of name for a batch.
func Key(prefix, batchID, name string) string {
	return strings.TrimPrefix(path.Join(prefix, batchID, name), "/")
}

// Upload stores the local file under the batch's key and returns its
// s3:// URI.
func (a *Archiver) Upload(ctx context.Context, batchID, localPath string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s for archiving: %w", localPath, err)
	}
	defer f.Close()

	key := Key(a.Prefix, batchID, filepath.Base(localPath))
	uri := fmt.Sprintf("s3://%s/%s", a.Bucket, key)
	_, err = a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
		Metadata:    map[string]string{"batch-id": batchID},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("failed to upload %s to %s: %s: %s", localPath, uri, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return "", fmt.Errorf("failed to upload %s to %s: %w", localPath, uri, err)
	}
	logging.Info("Archived %s to %s", localPath, uri)
	return uri, nil
}
