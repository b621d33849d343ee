// Package rastersource resolves an image-collection record's opaque
// descriptor to a local file path the raster backend can open. Warping
// itself is out of scope here; this package only gets bytes onto local
// disk under the server's spool directory.
package rastersource

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"cubed/internal/logging"
)

// Resolver fetches a descriptor to a local path, spooling remote objects
// under SpoolDir the first time they're requested and reusing the spooled
// copy afterward.
type Resolver struct {
	SpoolDir string
	Logger   *slog.Logger

	s3Client  *s3.Client
	gcsClient *storage.Client
}

// New constructs a Resolver. Cloud clients are created lazily on first use
// of their scheme so a server that never touches s3/az/gs never pays for
// client construction or credential discovery.
func New(spoolDir string, logger *slog.Logger) *Resolver {
	return &Resolver{SpoolDir: spoolDir, Logger: logging.Default(logger)}
}

// Resolve returns a local filesystem path for descriptor. For file:// or
// bare paths this is the path itself (no copy). For s3://, az://, gs://
// descriptors it spools the object to SpoolDir and returns that path.
func (r *Resolver) Resolve(ctx context.Context, descriptor string) (string, error) {
	u, err := url.Parse(descriptor)
	if err != nil || u.Scheme == "" || u.Scheme == "file" {
		return strings.TrimPrefix(descriptor, "file://"), nil
	}

	spooled := filepath.Join(r.SpoolDir, spoolName(u))
	if _, err := os.Stat(spooled); err == nil {
		return spooled, nil
	}

	if err := os.MkdirAll(r.SpoolDir, 0o755); err != nil {
		return "", fmt.Errorf("rastersource: create spool dir: %w", err)
	}

	var rc io.ReadCloser
	switch u.Scheme {
	case "s3":
		rc, err = r.openS3(ctx, u)
	case "az":
		rc, err = r.openAzure(ctx, u)
	case "gs":
		rc, err = r.openGCS(ctx, u)
	default:
		return "", fmt.Errorf("rastersource: unsupported descriptor scheme %q", u.Scheme)
	}
	if err != nil {
		return "", fmt.Errorf("rastersource: open %s: %w", descriptor, err)
	}
	defer rc.Close()

	tmp := spooled + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("rastersource: create spool file: %w", err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("rastersource: spool %s: %w", descriptor, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rastersource: close spool file: %w", err)
	}
	if err := os.Rename(tmp, spooled); err != nil {
		return "", fmt.Errorf("rastersource: finalize spool file: %w", err)
	}

	r.Logger.Info("spooled remote raster", "descriptor", descriptor, "path", spooled)
	return spooled, nil
}

func spoolName(u *url.URL) string {
	return u.Scheme + "_" + u.Host + "_" + strings.ReplaceAll(strings.TrimPrefix(u.Path, "/"), "/", "_")
}

func (r *Resolver) s3() (*s3.Client, error) {
	if r.s3Client != nil {
		return r.s3Client, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		return nil, err
	}
	r.s3Client = s3.NewFromConfig(cfg)
	return r.s3Client, nil
}

func (r *Resolver) openS3(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	client, err := r.s3()
	if err != nil {
		return nil, err
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(strings.TrimPrefix(u.Path, "/")),
	})
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (r *Resolver) openAzure(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	// az://account/container/blob — Host carries the storage account name,
	// the first path segment the container, the remainder the blob path.
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("az descriptor must be az://account/container/blob, got %q", u.String())
	}
	container, blob := parts[0], parts[1]

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", u.Host)
	cred, err := azblob.NewSharedKeyCredential(u.Host, os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"))
	var client *azblob.Client
	if err == nil {
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	}
	if err != nil {
		return nil, err
	}

	resp, err := client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (r *Resolver) gcs(ctx context.Context) (*storage.Client, error) {
	if r.gcsClient != nil {
		return r.gcsClient, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	r.gcsClient = client
	return client, nil
}

func (r *Resolver) openGCS(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	client, err := r.gcs(ctx)
	if err != nil {
		return nil, err
	}
	return client.Bucket(u.Host).Object(strings.TrimPrefix(u.Path, "/")).NewReader(ctx)
}

// Close releases any cloud clients the resolver created.
func (r *Resolver) Close() error {
	if r.gcsClient != nil {
		return r.gcsClient.Close()
	}
	return nil
}
