// Package drive mirrors exam and solution PDFs from shared Google
// Drive folders into object storage and the sheet catalog.
package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Item is a Drive file or folder.
type Item struct {
	ID   string
	Name string
	Size int64

	mimeType string
}

// Client is a thin wrapper over the Drive API.
type Client struct {
	svc *gdrive.Service
}

// NewClient creates a Drive client from a service account credentials file.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	svc, err := gdrive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gdrive.DriveReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ListFolders returns the subfolders of a folder.
func (c *Client) ListFolders(ctx context.Context, parentID string) ([]Item, error) {
	return c.list(ctx, parentID, fmt.Sprintf(
		"'%s' in parents and mimeType = '%s' and trashed = false", parentID, folderMimeType))
}

// ListPDFs returns the PDF files directly inside a folder. Files that
// are neither PDF-typed nor named *.pdf are logged and ignored.
func (c *Client) ListPDFs(ctx context.Context, parentID string) ([]Item, error) {
	files, err := c.list(ctx, parentID, fmt.Sprintf(
		"'%s' in parents and mimeType != '%s' and trashed = false", parentID, folderMimeType))
	if err != nil {
		return nil, err
	}

	items := files[:0]
	for _, f := range files {
		if f.mimeType == "application/pdf" || strings.HasSuffix(strings.ToLower(f.Name), ".pdf") {
			items = append(items, f)
			continue
		}
		slog.Warn("Ignoring non-PDF file in drive folder",
			"folder_id", parentID, "file", f.Name, "mime_type", f.mimeType)
	}
	return items, nil
}

func (c *Client) list(ctx context.Context, parentID, query string) ([]Item, error) {
	var items []Item
	pageToken := ""
	for {
		call := c.svc.Files.List().
			Context(ctx).
			Q(query).
			Fields("nextPageToken, files(id, name, mimeType, size)").
			PageSize(200)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		res, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list drive folder %s: %w", parentID, err)
		}
		for _, f := range res.Files {
			items = append(items, Item{ID: f.Id, Name: f.Name, Size: f.Size, mimeType: f.MimeType})
		}
		if res.NextPageToken == "" {
			return items, nil
		}
		pageToken = res.NextPageToken
	}
}

// Download opens a file's content stream. The caller closes it.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	res, err := c.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == 404 {
			return nil, fmt.Errorf("drive file %s not found", fileID)
		}
		return nil, fmt.Errorf("failed to download drive file %s: %w", fileID, err)
	}
	return res.Body, nil
}
