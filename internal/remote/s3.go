package remote

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"jassist-go/internal/jassist"
)

// S3API is the subset of the S3 client the remote uses.
type S3API interface {
	s3.ListObjectsV2APIClient
	manager.DownloadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Remote treats key prefixes under a bucket as folders:
//
//	<prefix>            folder id "root"
//	<prefix><name>/     folder id, as returned by FindFolder
//	<prefix><name>/<f>  file id is the object key
type S3Remote struct {
	client     S3API
	downloader *manager.Downloader
	bucket     string
	prefix     string
	logger     jassist.Logger
}

// S3Options configures NewS3Client.
type S3Options struct {
	Region          string
	Endpoint        string // optional, for S3-compatible services; enables path-style addressing
	AccessKeyID     string // optional; the default credential chain is used when empty
	SecretAccessKey string
}

// NewS3Client builds an S3 client from the default AWS config chain plus opts.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// NewS3Remote creates a remote over bucket. prefix, when set, is normalized to end in "/".
func NewS3Remote(client S3API, bucket, prefix string, logger jassist.Logger) *S3Remote {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if logger == nil {
		logger = jassist.NewNopLogger()
	}
	return &S3Remote{
		client:     client,
		downloader: manager.NewDownloader(client),
		bucket:     bucket,
		prefix:     prefix,
		logger:     logger,
	}
}

func (r *S3Remote) folderPrefix(folderID string) string {
	if folderID == jassist.RootFolder || folderID == "" {
		return r.prefix
	}
	return folderID
}

// FindFolder returns "<prefix><name>/" when at least one object lives under it.
func (r *S3Remote) FindFolder(ctx context.Context, name string) (string, error) {
	folder := r.prefix + strings.Trim(name, "/") + "/"
	out, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(r.bucket),
		Prefix:  aws.String(folder),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", r.transportError("find_folder", folder, err)
	}
	if len(out.Contents) == 0 {
		return "", nil
	}
	return folder, nil
}

// ListFiles returns the objects directly under folderID. Pages are accumulated.
func (r *S3Remote) ListFiles(ctx context.Context, folderID string) ([]*jassist.RemoteFile, error) {
	prefix := r.folderPrefix(folderID)
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})

	var files []*jassist.RemoteFile
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, r.transportError("list_files", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			files = append(files, &jassist.RemoteFile{
				ID:           key,
				Name:         path.Base(key),
				MimeType:     mimeFromName(key),
				ModifiedTime: aws.ToTime(obj.LastModified).UTC(),
				Size:         aws.ToInt64(obj.Size),
				Parents:      []string{folderID},
			})
		}
	}
	return files, nil
}

// GetMetadata returns nil when the object does not exist.
func (r *S3Remote) GetMetadata(ctx context.Context, fileID string) (*jassist.RemoteFile, error) {
	out, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, nil
		}
		return nil, r.transportError("get_metadata", fileID, err)
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" || contentType == "binary/octet-stream" {
		contentType = mimeFromName(fileID)
	}
	parent := path.Dir(fileID) + "/"
	if parent == "./" || parent == r.prefix {
		parent = jassist.RootFolder
	}
	return &jassist.RemoteFile{
		ID:           fileID,
		Name:         path.Base(fileID),
		MimeType:     contentType,
		ModifiedTime: aws.ToTime(out.LastModified).UTC(),
		Size:         aws.ToInt64(out.ContentLength),
		Parents:      []string{parent},
	}, nil
}

// Download fetches the object with the concurrent range downloader.
func (r *S3Remote) Download(ctx context.Context, fileID string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := r.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return nil, r.transportError("download", fileID, err)
	}
	return buf.Bytes(), nil
}

// Delete removes the object. S3 deletes are idempotent, so existence is checked first.
func (r *S3Remote) Delete(ctx context.Context, fileID string) (bool, error) {
	meta, err := r.GetMetadata(ctx, fileID)
	if err != nil {
		return false, err
	}
	if meta == nil {
		return false, nil
	}
	_, err = r.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(fileID),
	})
	if err != nil {
		return false, r.transportError("delete", fileID, err)
	}
	return true, nil
}

func (r *S3Remote) transportError(op, key string, err error) error {
	r.logger.Error("s3 request failed", "op", op, "bucket", r.bucket, "key", key, "error", err)

	detail := err.Error()
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		detail = apiErr.ErrorMessage()
		if detail == "" {
			detail = apiErr.ErrorCode()
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status := respErr.HTTPStatusCode()
		return jassist.NewTransportError(jassist.KindForStatus(status), status, detail, err)
	}
	return jassist.NewTransportError(jassist.KindConnection, 0, detail, err)
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404
}

func mimeFromName(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Compile-time check that S3Remote implements jassist.RemoteFileClient interface
var _ jassist.RemoteFileClient = (*S3Remote)(nil)
