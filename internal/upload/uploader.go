// Package upload sends message attachments to the media endpoint and
// tracks their progress per temporary message.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
	"github.com/matheus3301/chatsync/internal/model"
	"github.com/matheus3301/chatsync/internal/wire"
)

// ErrNoEndpoint is returned when no upload endpoint is configured.
var ErrNoEndpoint = errors.New("upload: no endpoint configured")

// File is one attachment to upload.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Reader   io.Reader
}

// Uploader posts multipart uploads to the media endpoint.
type Uploader struct {
	client   *resty.Client
	endpoint string
	token    func() string
}

// NewUploader creates an uploader for endpoint. token supplies the bearer
// credential for each upload.
func NewUploader(endpoint string, token func() string) *Uploader {
	return &Uploader{
		client:   resty.New(),
		endpoint: endpoint,
		token:    token,
	}
}

type uploadResponse struct {
	Medias []wire.Media `json:"medias"`
}

// Upload sends files and returns the stored media. progress, if non-nil,
// receives the percent of bytes consumed so far.
func (u *Uploader) Upload(ctx context.Context, files []File, progress func(pct int)) ([]model.Media, error) {
	if u == nil || u.endpoint == "" {
		return nil, ErrNoEndpoint
	}

	var total int64
	for _, f := range files {
		total += f.Size
	}
	var sent atomic.Int64
	report := func(n int) {
		if progress == nil || total <= 0 {
			return
		}
		done := sent.Add(int64(n))
		progress(int(done * 100 / total))
	}

	var result uploadResponse
	req := u.client.R().SetContext(ctx).SetResult(&result)
	if u.token != nil {
		if tok := u.token(); tok != "" {
			req.SetAuthToken(tok)
		}
	}
	for _, f := range files {
		req.SetFileReader("files", f.Name, &countingReader{r: f.Reader, report: report})
	}

	resp, err := req.Post(u.endpoint)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("upload: server returned %s", resp.Status())
	}
	if progress != nil {
		progress(100)
	}

	medias := make([]model.Media, 0, len(result.Medias))
	for _, m := range result.Medias {
		medias = append(medias, model.Media{ID: m.ID, Name: m.Name, URL: m.URL, MimeType: m.MimeType})
	}
	return medias, nil
}

type countingReader struct {
	r      io.Reader
	report func(n int)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.report(n)
	}
	return n, err
}
