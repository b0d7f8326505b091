// Package azure implements the storage.Driver interface against an
// Azure Blob Storage container. github.com/Azure/azure-sdk-for-go/sdk/storage/azblob
// is named rather than grounded: the teacher carries only Azure's
// management-plane SDKs (armcompute, armnetwork, armresources) for VM
// provisioning, not the blob data-plane client this backend needs.
// azidentity, the credential library, is a direct teacher dependency
// and is reused as-is.
package azure

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	pgstorage "github.com/qiuwenhuifx/pgbackrest/internal/storage"
	"github.com/qiuwenhuifx/pgbackrest/internal/streamio"
)

var logger = loggo.GetLogger("pgbackrest.storage.azure")

// Config selects the storage account, container, and key prefix.
// AccountKey, when set, authenticates via a shared key; otherwise the
// driver falls back to azidentity's default Azure credential chain
// (matching how the teacher authenticates its own ARM clients).
type Config struct {
	AccountURL string // e.g. https://<account>.blob.core.windows.net
	Container  string
	Prefix     string
	AccountKey string
}

// Driver stores repository objects as blobs under Config.Prefix in a
// single container.
type Driver struct {
	client *container.Client
	cfg    Config
}

// New builds a Driver from cfg.
func New(cfg Config) (*Driver, error) {
	var svcClient *service.Client
	var err error
	if cfg.AccountKey != "" {
		accountName := accountNameFromURL(cfg.AccountURL)
		cred, credErr := azblob.NewSharedKeyCredential(accountName, cfg.AccountKey)
		if credErr != nil {
			return nil, errors.Annotate(credErr, "build shared key credential")
		}
		svcClient, err = service.NewClientWithSharedKeyCredential(cfg.AccountURL, cred, nil)
	} else {
		var cred *azidentity.DefaultAzureCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, errors.Annotate(err, "build default Azure credential")
		}
		svcClient, err = service.NewClient(cfg.AccountURL, cred, nil)
	}
	if err != nil {
		return nil, errors.Annotate(err, "build Azure Blob service client")
	}
	return &Driver{client: svcClient.NewContainerClient(cfg.Container), cfg: cfg}, nil
}

func accountNameFromURL(u string) string {
	u = strings.TrimPrefix(u, "https://")
	if i := strings.Index(u, "."); i >= 0 {
		return u[:i]
	}
	return u
}

func (d *Driver) blobName(path string) string {
	return strings.TrimPrefix(d.cfg.Prefix+"/"+path, "/")
}

func (d *Driver) Features() map[pgstorage.Feature]bool {
	return map[pgstorage.Feature]bool{
		pgstorage.FeaturePath:            false,
		pgstorage.FeatureHardlink:        false,
		pgstorage.FeatureInfoDetail:      false,
		pgstorage.FeatureSymlink:         false,
		pgstorage.FeatureCompress:        false,
		pgstorage.FeatureEncryptedAtRest: true,
	}
}

func (d *Driver) Info(path string, level pgstorage.InfoLevel) (*pgstorage.InfoRecord, error) {
	ctx := context.Background()
	blobClient := d.client.NewBlobClient(d.blobName(path))
	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, nil
		}
		return nil, errors.Annotatef(err, "get properties %q", path)
	}
	rec := &pgstorage.InfoRecord{Name: path, Type: pgstorage.InfoTypeFile}
	if props.ContentLength != nil {
		rec.Size = *props.ContentLength
	}
	if props.LastModified != nil {
		rec.ModTime = *props.LastModified
	}
	return rec, nil
}

func (d *Driver) List(path string, expression string, level pgstorage.InfoLevel) ([]pgstorage.InfoRecord, error) {
	prefix := d.blobName(path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var out []pgstorage.InfoRecord
	pager := d.client.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(context.Background())
		if err != nil {
			return nil, errors.Annotatef(err, "list %q", path)
		}
		for _, item := range page.Segment.BlobItems {
			name := strings.TrimPrefix(*item.Name, prefix)
			if name == "" || (expression != "" && !matchExpr(expression, name)) {
				continue
			}
			rec := pgstorage.InfoRecord{Name: name, Type: pgstorage.InfoTypeFile}
			if item.Properties != nil {
				if item.Properties.ContentLength != nil {
					rec.Size = *item.Properties.ContentLength
				}
				if item.Properties.LastModified != nil {
					rec.ModTime = *item.Properties.LastModified
				}
			}
			out = append(out, rec)
		}
		for _, prefixItem := range page.Segment.BlobPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(*prefixItem.Name, prefix), "/")
			if name == "" || (expression != "" && !matchExpr(expression, name)) {
				continue
			}
			out = append(out, pgstorage.InfoRecord{Name: name, Type: pgstorage.InfoTypeDir})
		}
	}
	return out, nil
}

func matchExpr(expr, name string) bool {
	ok, err := filepath.Match(expr, name)
	return err == nil && ok
}

func (d *Driver) NewRead(path string, opts pgstorage.ReadOptions) (streamio.ReadEndpoint, error) {
	ctx := context.Background()
	blobClient := d.client.NewBlobClient(d.blobName(path))
	downloadOpts := &blob.DownloadStreamOptions{}
	if opts.Offset > 0 || opts.Limit > 0 {
		downloadOpts.Range = blob.HTTPRange{Offset: opts.Offset, Count: opts.Limit}
	}
	resp, err := blobClient.DownloadStream(ctx, downloadOpts)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			if opts.IgnoreMissing {
				return nil, nil
			}
			return nil, errors.NotFoundf("blob %q", path)
		}
		return nil, errors.Annotatef(err, "download %q", path)
	}
	return streamio.NewReadEndpoint(resp.Body), nil
}

func (d *Driver) NewWrite(path string, opts pgstorage.WriteOptions) (streamio.WriteEndpoint, error) {
	// Blob upload is atomic (the full blob is replaced in one PUT, or
	// staged blocks are committed in one call above the configured
	// block-size threshold), so no .tmp-sibling dance is needed.
	return &writeEndpoint{driver: d, path: path}, nil
}

type writeEndpoint struct {
	driver *Driver
	path   string
	buf    bytes.Buffer
	closed bool
}

func (w *writeEndpoint) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *writeEndpoint) Flush() error { return nil }

func (w *writeEndpoint) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	ctx := context.Background()
	blockBlob := w.driver.client.NewBlockBlobClient(w.driver.blobName(w.path))
	_, err := blockBlob.UploadBuffer(ctx, w.buf.Bytes(), nil)
	if err != nil {
		return errors.Annotatef(err, "upload %q", w.path)
	}
	logger.Debugf("wrote %d bytes to blob %q", w.buf.Len(), w.path)
	return nil
}

func (d *Driver) PathCreate(path string, mode uint32, noErrorIfExists, recurse bool) error {
	return nil // no real directories in blob storage
}

func (d *Driver) PathRemove(path string, recurse bool) error {
	if !recurse {
		return errors.Errorf("azure backend requires recurse=true for PathRemove (no real directories)")
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
	blob := d.client.NewBlobClient(d.blobName(path))
	_, err := blob.Delete(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) && !errorOnMissing {
			return nil
		}
		return errors.Annotatef(err, "delete %q", path)
	}
	return nil
}

func (d *Driver) Move(src, dst string) error {
	ctx := context.Background()
	srcBlob := d.client.NewBlobClient(d.blobName(src))
	dstBlob := d.client.NewBlobClient(d.blobName(dst))
	_, err := dstBlob.StartCopyFromURL(ctx, srcBlob.URL(), nil)
	if err != nil {
		return errors.Annotatef(err, "copy %q to %q", src, dst)
	}
	return d.Remove(src, false)
}
