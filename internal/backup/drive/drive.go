// Package drive stores backups as JSON files in a Google Drive folder,
// talking to the Drive API directly instead of through a script.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"findash/internal/backup"
	"findash/internal/backup/googleopts"
	applog "findash/internal/log"
)

const Kind = "drive"

const listFields = "nextPageToken, files(id, name, createdTime, modifiedTime, size)"

// Sink keeps backups in one folder. Deleting moves files to the trash,
// matching what the script sink does.
type Sink struct {
	svc    *drive.Service
	folder string
	logger *slog.Logger
}

// New creates a Drive service scoped to files the app creates.
func New(ctx context.Context, folderID string, creds googleopts.Credentials, logger *slog.Logger) (*Sink, error) {
	if strings.TrimSpace(folderID) == "" {
		return nil, errors.New("drive folder id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts, err := creds.ClientOptions(drive.DriveScope)
	if err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	logger.InfoContext(ctx, "Drive backup sink ready", "folder", folderID, "credentials", creds.Source())
	return &Sink{svc: svc, folder: folderID, logger: logger}, nil
}

func (s *Sink) Kind() string { return Kind }

func (s *Sink) List(ctx context.Context) ([]backup.BlobInfo, error) {
	out := []backup.BlobInfo{}
	err := s.svc.Files.List().
		Q(folderQuery(s.folder, "")).
		Fields(listFields).
		PageSize(100).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				out = append(out, blobInfo(f))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("list drive folder: %w", err)
	}
	backup.SortNewestFirst(out)
	return out, nil
}

func (s *Sink) Create(ctx context.Context, name string, payload []byte) (backup.CreateResult, error) {
	f, err := s.svc.Files.Create(&drive.File{
		Name:     name,
		Parents:  []string{s.folder},
		MimeType: "application/json",
	}).
		Media(bytes.NewReader(payload), googleapi.ContentType("application/json")).
		Fields("id, name").
		Context(ctx).
		Do()
	if err != nil {
		return backup.CreateResult{}, fmt.Errorf("upload %s: %w", name, err)
	}
	s.logger.DebugContext(ctx, "Backup uploaded", applog.FieldSink, Kind, "id", f.Id, "name", f.Name, "bytes", len(payload))
	return backup.CreateResult{ID: f.Id, Name: f.Name}, nil
}

func (s *Sink) Fetch(ctx context.Context, name string) ([]byte, error) {
	found, err := s.svc.Files.List().
		Q(folderQuery(s.folder, name)).
		Fields("files(id)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", name, err)
	}
	if len(found.Files) == 0 {
		return nil, fmt.Errorf("%w: %s", backup.ErrBlobNotFound, name)
	}

	resp, err := s.svc.Files.Get(found.Files[0].Id).Context(ctx).Download()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", backup.ErrBlobNotFound, name)
		}
		return nil, fmt.Errorf("download %s: %w", name, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (s *Sink) Delete(ctx context.Context, id string) error {
	_, err := s.svc.Files.Update(id, &drive.File{Trashed: true}).Fields("id").Context(ctx).Do()
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", backup.ErrBlobNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("trash %s: %w", id, err)
	}
	return nil
}

// folderQuery selects untrashed files in folder, optionally by exact name.
func folderQuery(folder, name string) string {
	q := fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folder))
	if name != "" {
		q += fmt.Sprintf(" and name = '%s'", escapeQuery(name))
	}
	return q
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func blobInfo(f *drive.File) backup.BlobInfo {
	info := backup.BlobInfo{ID: f.Id, Name: f.Name, Size: f.Size}
	for _, raw := range []string{f.CreatedTime, f.ModifiedTime} {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			info.Timestamp = t.UnixMilli()
			break
		}
	}
	return info
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

var _ backup.Sink = (*Sink)(nil)
