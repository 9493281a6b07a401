package httpclient

import (
	"context"
	"sort"
)

const (
	// UploadEndpoint stores a file for later use by a channel post.
	UploadEndpoint = "/api/v1/media/upload"
	// UploadDirectEndpoint streams a file straight to the channel.
	UploadDirectEndpoint = "/api/v1/media/upload-direct"

	uploadFileField    = "file"
	uploadChannelField = "channel_id"
)

// UploadFile posts a file as multipart/form-data to the media endpoint.
func (c *client) UploadFile(ctx context.Context, upload *Upload, progress ProgressFunc) (*Response, error) {
	return c.upload(ctx, UploadEndpoint, upload, progress)
}

// UploadFileDirect posts a file to the direct upload endpoint.
func (c *client) UploadFileDirect(ctx context.Context, upload *Upload, progress ProgressFunc) (*Response, error) {
	return c.upload(ctx, UploadDirectEndpoint, upload, progress)
}

// upload reports only a terminal state: 100 once the server accepted the
// file, 0 when the upload failed.
func (c *client) upload(ctx context.Context, endpoint string, upload *Upload, progress ProgressFunc) (*Response, error) {
	if upload == nil || upload.Content == nil {
		return nil, NewValidationError("upload content cannot be empty", uploadFileField)
	}
	if upload.FileName == "" {
		return nil, NewValidationError("upload file name cannot be empty", "filename")
	}

	form := NewForm()
	if upload.ChannelID != "" {
		form.AddField(uploadChannelField, upload.ChannelID)
	}
	keys := make([]string, 0, len(upload.Fields))
	for k := range upload.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.AddField(k, upload.Fields[k])
	}
	form.AddFile(uploadFileField, upload.FileName, upload.ContentType, upload.Content)

	resp, err := c.Post(ctx, endpoint, &Request{Body: form})
	if err != nil {
		notify(progress, 0)
		return nil, err
	}
	notify(progress, 100)

	c.logger.Info().
		Str("endpoint", endpoint).
		Str("file_name", upload.FileName).
		Str("channel_id", upload.ChannelID).
		Int("status", resp.StatusCode).
		Msg("File uploaded")
	return resp, nil
}

func notify(progress ProgressFunc, percent int) {
	if progress != nil {
		progress(percent)
	}
}
