package services

import (
	"context"
	"errors"

	"github.com/analyticbot/apiclient/httpclient"
)

// ChannelService manages tracked channels.
type ChannelService struct {
	*base
}

// List returns the user's channels.
func (s *ChannelService) List(ctx context.Context) ([]Channel, error) {
	return call(ctx, s.base, "channels.list", func(ctx context.Context) ([]Channel, error) {
		return httpclient.GetJSON[[]Channel](ctx, s.client, PathChannels, nil)
	})
}

// Get returns one channel.
func (s *ChannelService) Get(ctx context.Context, id int64) (*Channel, error) {
	return call(ctx, s.base, "channels.get", func(ctx context.Context) (*Channel, error) {
		if id <= 0 {
			return nil, errors.New("channel id must be positive")
		}
		ch, err := httpclient.GetJSON[Channel](ctx, s.client, ChannelPath(id), nil)
		if err != nil {
			return nil, err
		}
		return &ch, nil
	})
}

// Create adds a channel.
func (s *ChannelService) Create(ctx context.Context, req CreateChannelRequest) (*Channel, error) {
	return call(ctx, s.base, "channels.create", func(ctx context.Context) (*Channel, error) {
		if err := s.check(req); err != nil {
			return nil, err
		}
		ch, err := httpclient.PostJSON[Channel](ctx, s.client, PathChannels, req)
		if err != nil {
			return nil, err
		}
		return &ch, nil
	})
}

// Delete removes a channel.
func (s *ChannelService) Delete(ctx context.Context, id int64) error {
	_, err := call(ctx, s.base, "channels.delete", func(ctx context.Context) (*httpclient.Response, error) {
		if id <= 0 {
			return nil, errors.New("channel id must be positive")
		}
		return s.client.Delete(ctx, ChannelPath(id), nil)
	})
	return err
}
