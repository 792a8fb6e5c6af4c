/*
Copyright 2025 Sealmart Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	pkgerrors "github.com/pkg/errors"

	"github.com/sealmart/sealmart/config"
	"github.com/sealmart/sealmart/internal/fault"
	"github.com/sealmart/sealmart/internal/sealbox"
)

// S3Store keeps blobs in an S3-compatible bucket, keyed by the hex sha256 of
// their contents.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds a Store from the storage section of the configuration.
// A custom endpoint supports S3-compatible object stores.
func NewS3Store(ctx context.Context, conf *config.StorageConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(conf.S3Region),
	}
	if conf.AwsAccessKeyId != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(conf.AwsAccessKeyId, conf.AwsSecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "loading aws config")
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if conf.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(conf.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: conf.S3BucketName}, nil
}

func (s *S3Store) Get(ctx context.Context, contentID string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(contentID),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			// May be replication lag right after a Put; let the caller's
			// schedule decide when to give up.
			return nil, fault.New(fault.Transient, "content not found: "+contentID, err)
		}
		return nil, fault.New(fault.Transient, "storage get failed", err)
	}
	defer func() {
		_ = out.Body.Close()
	}()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fault.New(fault.Transient, "storage read failed", err)
	}
	return data, nil
}

func (s *S3Store) Put(ctx context.Context, data []byte) (string, error) {
	contentID := sealbox.ContentHash(data)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(contentID),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fault.New(fault.Transient, "storage put failed", err)
	}
	return contentID, nil
}
