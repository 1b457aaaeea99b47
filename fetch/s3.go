// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package fetch

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mdhender/salesingest/catalog"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// S3API is the subset of the S3 client used by S3Fetcher.
type S3API interface {
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher downloads the objects directly under a bucket prefix.
type S3Fetcher struct {
	client      S3API
	bucket      string
	prefix      string
	dstDir      string
	concurrency int
	fs          afero.Fs
	logger      zerolog.Logger
}

// S3Option configures an S3Fetcher.
type S3Option func(*S3Fetcher)

// WithS3Client sets a custom S3 client (useful for testing).
func WithS3Client(c S3API) S3Option {
	return func(f *S3Fetcher) { f.client = c }
}

// WithConcurrency sets the number of parallel downloads.
func WithConcurrency(n int) S3Option {
	return func(f *S3Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithFS sets the staging filesystem.
func WithFS(fs afero.Fs) S3Option {
	return func(f *S3Fetcher) { f.fs = fs }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) S3Option {
	return func(f *S3Fetcher) { f.logger = logger }
}

// NewS3Fetcher creates a fetcher for s3://bucket/prefix into dstDir.
func NewS3Fetcher(ctx context.Context, bucket, prefix, dstDir string, opts ...S3Option) (*S3Fetcher, error) {
	if bucket == "" {
		return nil, fmt.Errorf("S3 bucket name required")
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	f := &S3Fetcher{
		bucket:      bucket,
		prefix:      prefix,
		dstDir:      dstDir,
		concurrency: 4,
		fs:          osFS(),
		logger:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(f)
	}
	if f.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		f.client = s3.NewFromConfig(cfg)
	}
	return f, nil
}

type s3Object struct {
	key  string
	name string
	size int64
}

// Fetch implements Fetcher. Objects are listed first, then the missing
// ones are downloaded in parallel. The first download error cancels the
// rest.
func (f *S3Fetcher) Fetch(ctx context.Context) (int, error) {
	objects, err := f.list(ctx)
	if err != nil {
		return 0, err
	}

	var todo []s3Object
	for _, obj := range objects {
		if !isStaged(f.fs, filepath.Join(f.dstDir, obj.name), obj.size) {
			todo = append(todo, obj)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for _, obj := range todo {
		g.Go(func() error {
			return f.download(gctx, obj)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(todo), nil
}

func (f *S3Fetcher) list(ctx context.Context) ([]s3Object, error) {
	var objects []s3Object
	p := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(f.bucket),
		Prefix:    aws.String(f.prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", f.bucket, f.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := path.Base(key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			if _, ok := catalog.Classify(name); !ok {
				continue
			}
			objects = append(objects, s3Object{key: key, name: name, size: aws.ToInt64(obj.Size)})
		}
	}
	return objects, nil
}

func (f *S3Fetcher) download(ctx context.Context, obj s3Object) error {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(obj.key),
	})
	if err != nil {
		return fmt.Errorf("getting s3://%s/%s: %w", f.bucket, obj.key, err)
	}
	defer out.Body.Close()

	if err := stageFile(f.fs, filepath.Join(f.dstDir, obj.name), out.Body); err != nil {
		return err
	}
	f.logger.Debug().Str("key", obj.key).Int64("bytes", obj.size).Msg("downloaded")
	return nil
}
