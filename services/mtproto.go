package services

import (
	"context"
	"errors"
	"net/url"

	"github.com/analyticbot/apiclient/httpclient"
)

// MTProtoService connects the user's own Telegram account for reading
// channel statistics through MTProto.
type MTProtoService struct {
	*base
}

// Status reports whether a Telegram session is connected.
func (s *MTProtoService) Status(ctx context.Context) (*MTProtoStatus, error) {
	return call(ctx, s.base, "mtproto.status", func(ctx context.Context) (*MTProtoStatus, error) {
		st, err := httpclient.GetJSON[MTProtoStatus](ctx, s.client, PathMTProtoStatus, nil)
		if err != nil {
			return nil, err
		}
		return &st, nil
	})
}

// StartQRLogin begins a QR code login.
func (s *MTProtoService) StartQRLogin(ctx context.Context) (*QRLogin, error) {
	return call(ctx, s.base, "mtproto.qr_start", func(ctx context.Context) (*QRLogin, error) {
		qr, err := httpclient.PostJSON[QRLogin](ctx, s.client, PathMTProtoQRStart, nil)
		if err != nil {
			return nil, err
		}
		return &qr, nil
	})
}

// PollQRLogin returns the state of a QR login started by StartQRLogin.
func (s *MTProtoService) PollQRLogin(ctx context.Context, token string) (*QRStatus, error) {
	return call(ctx, s.base, "mtproto.qr_poll", func(ctx context.Context) (*QRStatus, error) {
		if token == "" {
			return nil, errors.New("qr token is empty")
		}
		st, err := httpclient.GetJSON[QRStatus](ctx, s.client, PathMTProtoQRPoll,
			&httpclient.Request{Query: url.Values{"token": {token}}})
		if err != nil {
			return nil, err
		}
		return &st, nil
	})
}

// SendCode asks Telegram to send a login code to the phone.
func (s *MTProtoService) SendCode(ctx context.Context, req SendCodeRequest) (*SendCodeResponse, error) {
	return call(ctx, s.base, "mtproto.send_code", func(ctx context.Context) (*SendCodeResponse, error) {
		if err := s.check(req); err != nil {
			return nil, err
		}
		resp, err := httpclient.PostJSON[SendCodeResponse](ctx, s.client, PathMTProtoSendCode, req)
		if err != nil {
			return nil, err
		}
		return &resp, nil
	})
}

// VerifyCode confirms the login code. The result may require VerifyPassword.
func (s *MTProtoService) VerifyCode(ctx context.Context, req VerifyCodeRequest) (*VerifyResult, error) {
	return call(ctx, s.base, "mtproto.verify_code", func(ctx context.Context) (*VerifyResult, error) {
		if err := s.check(req); err != nil {
			return nil, err
		}
		res, err := httpclient.PostJSON[VerifyResult](ctx, s.client, PathMTProtoVerifyCode, req)
		if err != nil {
			return nil, err
		}
		return &res, nil
	})
}

// VerifyPassword completes a two-step verification login.
func (s *MTProtoService) VerifyPassword(ctx context.Context, req VerifyPasswordRequest) (*VerifyResult, error) {
	return call(ctx, s.base, "mtproto.verify_2fa", func(ctx context.Context) (*VerifyResult, error) {
		if err := s.check(req); err != nil {
			return nil, err
		}
		res, err := httpclient.PostJSON[VerifyResult](ctx, s.client, PathMTProtoVerifyPassword, req)
		if err != nil {
			return nil, err
		}
		return &res, nil
	})
}

// Disconnect drops the Telegram session.
func (s *MTProtoService) Disconnect(ctx context.Context) error {
	_, err := call(ctx, s.base, "mtproto.disconnect", func(ctx context.Context) (Status, error) {
		return httpclient.PostJSON[Status](ctx, s.client, PathMTProtoDisconnect, nil)
	})
	return err
}
