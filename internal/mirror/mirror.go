// Package mirror uploads backup snapshots to an S3-compatible bucket.
//
// Each regular file of a snapshot becomes one object under
// {prefix}{snapshot name}/{relative path}. Symlinks and special files are
// not uploaded.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/bianoble/repo-guardian/internal/backup"
)

// DefaultContentType is used when sniffing yields nothing useful.
const DefaultContentType = "application/octet-stream"

// DefaultRegion is used when neither the options nor the environment name one.
const DefaultRegion = "us-east-1"

// ErrUploadFailed is wrapped by every error returned from Upload.
var ErrUploadFailed = errors.New("mirror upload failed")

// S3API is the subset of the S3 client used by the mirror.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Options configures New.
type Options struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint points the client at an S3-compatible service such as MinIO.
	// Path-style addressing is enabled when it is set.
	Endpoint string
}

// S3 mirrors snapshots into a bucket.
type S3 struct {
	client S3API
	bucket string
	prefix string
	fs     billy.Filesystem
}

// New builds an S3 mirror using the default AWS credential chain.
func New(ctx context.Context, opts Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("mirror: bucket is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	if opts.Region != "" {
		cfg.Region = opts.Region
	} else if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewWithClient(s3.NewFromConfig(cfg, s3Opts...), opts.Bucket, opts.Prefix), nil
}

// NewWithClient builds a mirror around an existing client.
func NewWithClient(client S3API, bucket, prefix string) *S3 {
	return &S3{
		client: client,
		bucket: bucket,
		prefix: normalizePrefix(prefix),
		fs:     osfs.New("/"),
	}
}

// Bucket returns the destination bucket.
func (m *S3) Bucket() string { return m.bucket }

// Key returns the object key for a file at rel inside the snapshot.
func (m *S3) Key(snap backup.Snapshot, rel string) string {
	return m.prefix + path.Join(snap.Name(), filepath.ToSlash(rel))
}

// Upload copies every regular file of snap to the bucket. It stops at the
// first failure; objects already written are left in place.
func (m *S3) Upload(ctx context.Context, snap backup.Snapshot) error {
	root := snap.Path
	err := util.Walk(m.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		return m.put(ctx, p, m.Key(snap, rel), info.Size())
	})
	if err != nil {
		return fmt.Errorf("%w: %s to s3://%s: %w", ErrUploadFailed, snap.Name(), m.bucket, err)
	}
	return nil
}

func (m *S3) put(ctx context.Context, p, key string, size int64) error {
	f, err := m.fs.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()

	contentType, err := detectContentType(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", p, err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}
	return nil
}

// detectContentType sniffs the first bytes of f and rewinds it.
func detectContentType(f billy.File) (string, error) {
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if n == 0 {
		return DefaultContentType, nil
	}
	if mt := mimetype.Detect(buf[:n]); mt != nil {
		return mt.String(), nil
	}
	return DefaultContentType, nil
}

func normalizePrefix(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}
