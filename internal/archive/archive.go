// Package archive uploads saved recordings to S3-compatible object storage.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config selects the bucket recordings go to.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	// Prefix is prepended to every object key, e.g. "room-1".
	Prefix string
	Secure bool
}

// ConfigFromEnv reads SNOEZELEN_S3_* variables. ok is false when no
// endpoint is set.
func ConfigFromEnv() (cfg Config, ok bool) {
	cfg = Config{
		Endpoint:  os.Getenv("SNOEZELEN_S3_ENDPOINT"),
		AccessKey: os.Getenv("SNOEZELEN_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("SNOEZELEN_S3_SECRET_KEY"),
		Bucket:    os.Getenv("SNOEZELEN_S3_BUCKET"),
		Region:    os.Getenv("SNOEZELEN_S3_REGION"),
		Prefix:    os.Getenv("SNOEZELEN_S3_PREFIX"),
		Secure:    parseBool(os.Getenv("SNOEZELEN_S3_SECURE"), true),
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "snoezelen"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return cfg, cfg.Endpoint != ""
}

func parseBool(s string, def bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

// Validate reports missing fields.
func (c Config) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		errs = append(errs, errors.New("access key and secret key must be set together"))
	}
	return errors.Join(errs...)
}

// Key returns the object key for name under prefix.
func Key(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// ContentType guesses the upload content type from a file name.
func ContentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return "application/json"
	case ".avi":
		return "video/x-msvideo"
	}
	return "application/octet-stream"
}

// Archive is a bucket in object storage.
type Archive struct {
	client *minio.Client
	cfg    Config
}

// New connects to the endpoint and creates the bucket if it does not exist.
func New(ctx context.Context, cfg Config) (*Archive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("archive config: %w", err)
	}

	opts := &minio.Options{Secure: cfg.Secure, Region: cfg.Region}
	if cfg.AccessKey != "" {
		opts.Creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}
	client, err := minio.New(cfg.Endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Printf("Created archive bucket %s", cfg.Bucket)
	}

	return &Archive{client: client, cfg: cfg}, nil
}

// Put uploads size bytes from r as name and returns the object key.
func (a *Archive) Put(ctx context.Context, name string, r io.Reader, size int64) (string, error) {
	key := Key(a.cfg.Prefix, name)
	_, err := a.client.PutObject(ctx, a.cfg.Bucket, key, r, size, minio.PutObjectOptions{
		ContentType: ContentType(name),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// PutFile uploads the file at p under its base name.
func (a *Archive) PutFile(ctx context.Context, p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", p, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", p, err)
	}
	return a.Put(ctx, filepath.Base(p), f, info.Size())
}

// Bucket returns the configured bucket name.
func (a *Archive) Bucket() string {
	return a.cfg.Bucket
}
