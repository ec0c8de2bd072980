// Package s3store is the S3-backed Store backend, grounded directly on
// the teacher's pkg/storage/cloudimpl.ExternalStorage: it spools Create
// writes to a local temp file and issues a single PutObject on Finalize
// (the same "buffer then one write" discipline cloudimpl uses for its S3
// provider), using the v1 AWS SDK the teacher imports directly
// (github.com/aws/aws-sdk-go/service/s3) rather than the v2 client the
// teacher reserves for RDS/EC2/IAM control-plane calls elsewhere.
package s3store

import (
	"context"
	"io"
	"os"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/indexlake/indexlake/pkg/lakeerrors"
	"github.com/indexlake/indexlake/pkg/storage"
)

// Store addresses objects under bucket/prefix/<path>.
type Store struct {
	client *s3.S3
	bucket string
	prefix string
}

// New builds a Store over an existing AWS session, matching the
// teacher's convention of constructing service clients from a shared
// *session.Session rather than owning credential resolution itself.
func New(sess *session.Session, bucket, prefix string) *Store {
	return &Store{client: s3.New(sess), bucket: bucket, prefix: prefix}
}

func (s *Store) key(p string) string {
	return path.Join(s.prefix, p)
}

func (s *Store) Create(ctx context.Context, p string) (storage.Writer, error) {
	tmp, err := os.CreateTemp("", "indexlake-s3-spool-*")
	if err != nil {
		return nil, lakeerrors.Storage(err, "spool file for %s", p)
	}
	return &objectWriter{ctx: ctx, store: s, key: s.key(p), tmp: tmp}, nil
}

func (s *Store) Open(ctx context.Context, p string) (storage.Reader, error) {
	key := s.key(p)
	head, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket), Key: aws.String(key),
	})
	if err != nil {
		return nil, lakeerrors.NotFound("object %s: %v", p, err)
	}
	return &objectReader{ctx: ctx, store: s, key: key, size: aws.Int64Value(head.ContentLength)}, nil
}

func (s *Store) Delete(ctx context.Context, p string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket), Key: aws.String(s.key(p)),
	})
	if err != nil {
		return lakeerrors.Storage(err, "delete %s", p)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket), Key: aws.String(s.key(p)),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Store) RemoveDirAll(ctx context.Context, prefix string) error {
	keyPrefix := s.key(prefix)
	var continuationToken *string
	for {
		out, err := s.client.ListObjectsV2WithContext(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(keyPrefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return lakeerrors.Storage(err, "list objects under %s", prefix)
		}
		for _, obj := range out.Contents {
			if _, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket), Key: obj.Key,
			}); err != nil {
				return lakeerrors.Storage(err, "delete %s", aws.StringValue(obj.Key))
			}
		}
		if !aws.BoolValue(out.IsTruncated) {
			return nil
		}
		continuationToken = out.NextContinuationToken
	}
}

type objectWriter struct {
	ctx   context.Context
	store *Store
	key   string
	tmp   *os.File
	done  bool
}

func (w *objectWriter) Write(p []byte) (int, error) { return w.tmp.Write(p) }

func (w *objectWriter) Finalize(ctx context.Context) error {
	defer os.Remove(w.tmp.Name())
	if _, err := w.tmp.Seek(0, io.SeekStart); err != nil {
		return lakeerrors.Storage(err, "seek spool file")
	}
	_, err := w.store.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.store.bucket),
		Key:    aws.String(w.key),
		Body:   w.tmp,
	})
	w.done = true
	_ = w.tmp.Close()
	if err != nil {
		return lakeerrors.Storage(err, "put object %s", w.key)
	}
	return nil
}

func (w *objectWriter) Abort(ctx context.Context) error {
	_ = w.tmp.Close()
	_ = os.Remove(w.tmp.Name())
	if w.done {
		_, err := w.store.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(w.store.bucket), Key: aws.String(w.key),
		})
		if err != nil {
			return lakeerrors.Storage(err, "abort-delete %s", w.key)
		}
	}
	return nil
}

type objectReader struct {
	ctx   context.Context
	store *Store
	key   string
	size  int64
}

func (r *objectReader) ReadAt(ctx context.Context, p []byte, offset int64) (int, error) {
	end := offset + int64(len(p)) - 1
	rangeHeader := aws.String(awsByteRange(offset, end))
	out, err := r.store.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.store.bucket),
		Key:    aws.String(r.key),
		Range:  rangeHeader,
	})
	if err != nil {
		return 0, lakeerrors.Storage(err, "get object range %s", r.key)
	}
	defer out.Body.Close()
	return io.ReadFull(out.Body, p)
}

func (r *objectReader) Size(ctx context.Context) (int64, error) {
	return r.size, nil
}

func (r *objectReader) Close() error { return nil }

func awsByteRange(start, end int64) string {
	return "bytes=" + strconv.FormatInt(start, 10) + "-" + strconv.FormatInt(end, 10)
}
