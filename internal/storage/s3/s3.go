// Package s3 implements the storage.Driver interface against an S3 (or
// S3-compatible) bucket, using github.com/aws/aws-sdk-go-v2 — a direct
// dependency of the teacher repository (pulled there for its EC2/ECR
// cloud provider; here it drives the actual object-store repository
// backend).
package s3

import (
	"bytes"
	stderrors "errors"
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	pgstorage "github.com/qiuwenhuifx/pgbackrest/internal/storage"
	"github.com/qiuwenhuifx/pgbackrest/internal/streamio"
)

var logger = loggo.GetLogger("pgbackrest.storage.s3")

// Config selects the bucket, key prefix, region, and optional
// alternate endpoint (used for GCS's S3-compatible XML API and for
// S3-compatible on-prem object stores, per spec.md §4.5's GCS backend
// resolution recorded in DESIGN.md).
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // non-empty selects a custom (e.g. GCS-compatible) endpoint
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool // required by most non-AWS S3-compatible endpoints
}

// Driver stores repository objects as keys under Config.Prefix in a
// single S3 bucket.
type Driver struct {
	client *s3.Client
	cfg    Config
}

// New builds a Driver from cfg, resolving AWS credentials the same way
// the CLI does: explicit keys if given, otherwise the default chain
// (environment, shared config, IMDSv2 for EC2 instance roles).
func New(ctx context.Context, cfg Config) (*Driver, error) {
	optFns := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, errors.Annotate(err, "load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return &Driver{client: client, cfg: cfg}, nil
}

func (d *Driver) key(path string) string {
	return strings.TrimPrefix(d.cfg.Prefix+"/"+path, "/")
}

func (d *Driver) Features() map[pgstorage.Feature]bool {
	return map[pgstorage.Feature]bool{
		pgstorage.FeaturePath:            false, // no real directories; keys with a common prefix simulate them
		pgstorage.FeatureHardlink:        false,
		pgstorage.FeatureInfoDetail:      false,
		pgstorage.FeatureSymlink:         false,
		pgstorage.FeatureCompress:        false,
		pgstorage.FeatureEncryptedAtRest: true, // SSE available server-side; not modeled further here
	}
}

func (d *Driver) Info(path string, level pgstorage.InfoLevel) (*pgstorage.InfoRecord, error) {
	ctx := context.Background()
	out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Annotatef(err, "head object %q", path)
	}
	rec := &pgstorage.InfoRecord{
		Name: path,
		Type: pgstorage.InfoTypeFile,
	}
	if out.ContentLength != nil {
		rec.Size = *out.ContentLength
	}
	if out.LastModified != nil {
		rec.ModTime = *out.LastModified
	}
	return rec, nil
}

func (d *Driver) List(path string, expression string, level pgstorage.InfoLevel) ([]pgstorage.InfoRecord, error) {
	ctx := context.Background()
	prefix := d.key(path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var out []pgstorage.InfoRecord
	var token *string
	for {
		resp, err := d.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(d.cfg.Bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errors.Annotatef(err, "list %q", path)
		}
		for _, obj := range resp.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || (expression != "" && !matchExpr(expression, name)) {
				continue
			}
			out = append(out, pgstorage.InfoRecord{
				Name:    name,
				Type:    pgstorage.InfoTypeFile,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
		for _, sub := range resp.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(sub.Prefix), prefix), "/")
			if name == "" || (expression != "" && !matchExpr(expression, name)) {
				continue
			}
			out = append(out, pgstorage.InfoRecord{Name: name, Type: pgstorage.InfoTypeDir})
		}
		if !aws.ToBool(resp.IsTruncated) {
			break
		}
		token = resp.NextContinuationToken
	}
	return out, nil
}

func matchExpr(expr, name string) bool {
	ok, err := filepath.Match(expr, name)
	return err == nil && ok
}

func (d *Driver) NewRead(path string, opts pgstorage.ReadOptions) (streamio.ReadEndpoint, error) {
	ctx := context.Background()
	input := &s3.GetObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.key(path)),
	}
	if opts.Offset > 0 || opts.Limit > 0 {
		end := ""
		if opts.Limit > 0 {
			end = strconv.FormatInt(opts.Offset+opts.Limit-1, 10)
		}
		input.Range = aws.String("bytes=" + strconv.FormatInt(opts.Offset, 10) + "-" + end)
	}
	out, err := d.client.GetObject(ctx, input)
	if err != nil {
		if isNotFound(err) {
			if opts.IgnoreMissing {
				return nil, nil
			}
			return nil, errors.NotFoundf("object %q", path)
		}
		return nil, errors.Annotatef(err, "get object %q", path)
	}
	return streamio.NewReadEndpoint(out.Body), nil
}

func (d *Driver) NewWrite(path string, opts pgstorage.WriteOptions) (streamio.WriteEndpoint, error) {
	// S3 PutObject is inherently atomic (last write wins, no partial
	// object is ever visible), so the .tmp-sibling dance the POSIX
	// driver needs is unnecessary here; the write endpoint buffers and
	// uploads on Close.
	return &writeEndpoint{driver: d, path: path, modTime: opts.ModificationTime}, nil
}

type writeEndpoint struct {
	driver  *Driver
	path    string
	buf     []byte
	modTime time.Time
	closed  bool
}

func (w *writeEndpoint) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *writeEndpoint) Flush() error { return nil }

func (w *writeEndpoint) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	ctx := context.Background()
	_, err := w.driver.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.driver.cfg.Bucket),
		Key:    aws.String(w.driver.key(w.path)),
		Body:   bytes.NewReader(w.buf),
	})
	if err != nil {
		return errors.Annotatef(err, "put object %q", w.path)
	}
	logger.Debugf("wrote %d bytes to s3://%s/%s", len(w.buf), w.driver.cfg.Bucket, w.driver.key(w.path))
	return nil
}

func (d *Driver) PathCreate(path string, mode uint32, noErrorIfExists, recurse bool) error {
	// Object stores have no real directories; prefixes come into being
	// implicitly with the first object written under them.
	return nil
}

func (d *Driver) PathRemove(path string, recurse bool) error {
	if !recurse {
		return errors.Errorf("s3 backend requires recurse=true for PathRemove (no real directories)")
	}
	entries, err := d.List(path, "", pgstorage.InfoLevelExists)
	if err != nil {
		return errors.Trace(err)
	}
	for _, e := range entries {
		full := strings.TrimSuffix(path, "/") + "/" + e.Name
		if e.Type == pgstorage.InfoTypeDir {
			if err := d.PathRemove(full, true); err != nil {
				return err
			}
			continue
		}
		if err := d.Remove(full, false); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) Remove(path string, errorOnMissing bool) error {
	ctx := context.Background()
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.key(path)),
	})
	if err != nil {
		return errors.Annotatef(err, "delete object %q", path)
	}
	return nil
}

func (d *Driver) Move(src, dst string) error {
	ctx := context.Background()
	_, err := d.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(d.cfg.Bucket),
		CopySource: aws.String(d.cfg.Bucket + "/" + d.key(src)),
		Key:        aws.String(d.key(dst)),
	})
	if err != nil {
		return errors.Annotatef(err, "copy %q to %q", src, dst)
	}
	return d.Remove(src, false)
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	return stderrors.As(err, &nsk) || stderrors.As(err, &nf)
}
