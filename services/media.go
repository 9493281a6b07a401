package services

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/analyticbot/apiclient/httpclient"
)

// MediaService uploads and lists channel media.
type MediaService struct {
	*base
}

// Upload stores a file for a later post.
func (s *MediaService) Upload(ctx context.Context, u MediaUpload, progress httpclient.ProgressFunc) (*MediaFile, error) {
	return s.upload(ctx, "media.upload", u, progress, s.client.UploadFile)
}

// UploadDirect sends a file straight to the channel.
func (s *MediaService) UploadDirect(ctx context.Context, u MediaUpload, progress httpclient.ProgressFunc) (*MediaFile, error) {
	return s.upload(ctx, "media.upload_direct", u, progress, s.client.UploadFileDirect)
}

type uploadFunc func(ctx context.Context, u *httpclient.Upload, progress httpclient.ProgressFunc) (*httpclient.Response, error)

func (s *MediaService) upload(ctx context.Context, op string, u MediaUpload, progress httpclient.ProgressFunc, send uploadFunc) (*MediaFile, error) {
	return call(ctx, s.base, op, func(ctx context.Context) (*MediaFile, error) {
		if u.Content == nil || u.FileName == "" {
			return nil, errors.New("file name and content are required")
		}

		upload := &httpclient.Upload{
			FileName:    u.FileName,
			ContentType: u.ContentType,
			Content:     u.Content,
		}
		if u.ChannelID != 0 {
			upload.ChannelID = strconv.FormatInt(u.ChannelID, 10)
		}
		if u.Caption != "" {
			upload.Fields = map[string]string{"caption": u.Caption}
		}

		resp, err := send(ctx, upload, progress)
		if err != nil {
			return nil, err
		}
		file, err := httpclient.Decode[MediaFile](resp)
		if err != nil {
			return nil, err
		}
		return &file, nil
	})
}

// List returns uploaded files, optionally filtered by channel.
func (s *MediaService) List(ctx context.Context, channelID int64) ([]MediaFile, error) {
	return call(ctx, s.base, "media.list", func(ctx context.Context) ([]MediaFile, error) {
		var req *httpclient.Request
		if channelID != 0 {
			req = &httpclient.Request{Query: url.Values{"channel_id": {strconv.FormatInt(channelID, 10)}}}
		}
		return httpclient.GetJSON[[]MediaFile](ctx, s.client, PathMedia, req)
	})
}
