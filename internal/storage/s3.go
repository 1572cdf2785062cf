// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/lawrancejing/gnocchi/internal/config"
)

// S3Driver stores one object per metric in a bucket.
type S3Driver struct {
	client *s3.Client
	bucket string
}

func NewS3Driver(cfg config.S3Config) (*S3Driver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("[STORAGE]> s3 driver: empty bucket name")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("[STORAGE]> s3 driver: %w", err)
	}

	opts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}

	return &S3Driver{client: s3.NewFromConfig(awsCfg, opts), bucket: cfg.Bucket}, nil
}

func (sd *S3Driver) key(metricID string) string {
	return "archives/" + metricID
}

func (sd *S3Driver) Get(ctx context.Context, metricID string) ([]byte, error) {
	out, err := sd.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(sd.bucket),
		Key:    aws.String(sd.key(metricID)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("[STORAGE]> s3 get %q: %w", metricID, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (sd *S3Driver) Put(ctx context.Context, metricID string, blob []byte) error {
	_, err := sd.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(sd.bucket),
		Key:         aws.String(sd.key(metricID)),
		Body:        bytes.NewReader(blob),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("[STORAGE]> s3 put %q: %w", metricID, err)
	}
	return nil
}

func (sd *S3Driver) Delete(ctx context.Context, metricID string) error {
	_, err := sd.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(sd.bucket),
		Key:    aws.String(sd.key(metricID)),
	})
	if err != nil {
		return fmt.Errorf("[STORAGE]> s3 delete %q: %w", metricID, err)
	}
	return nil
}
