package mockapi

import (
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/analyticbot/apiclient/services"
)

const qrTTL = 30 * time.Second

func (s *Server) mtprotoStatus(c echo.Context) error {
	s.store.mu.Lock()
	st := s.store.mtprotoFor(currentUserID(c)).status
	s.store.mu.Unlock()
	return c.JSON(http.StatusOK, st)
}

func (s *Server) startQR(c echo.Context) error {
	token := uuid.NewString()
	expires := s.now().Add(qrTTL).UTC()

	s.store.mu.Lock()
	st := s.store.mtprotoFor(currentUserID(c))
	st.qrPolls[token] = 0
	st.qrExpires[token] = expires
	s.store.mu.Unlock()

	return c.JSON(http.StatusOK, services.QRLogin{
		Token:     token,
		URL:       "tg://login?token=" + base64.RawURLEncoding.EncodeToString([]byte(token)),
		ExpiresAt: expires,
	})
}

func (s *Server) pollQR(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return errBadRequest("token is required")
	}
	userID := currentUserID(c)
	now := s.now()

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	st := s.store.mtprotoFor(userID)
	expires, ok := st.qrExpires[token]
	if !ok {
		return errNotFound("QR login")
	}
	if now.After(expires) {
		delete(st.qrPolls, token)
		delete(st.qrExpires, token)
		return c.JSON(http.StatusOK, services.QRStatus{Status: services.QRExpired})
	}
	st.qrPolls[token]++
	if st.qrPolls[token] < qrConfirmAfter {
		return c.JSON(http.StatusOK, services.QRStatus{Status: services.QRPending})
	}

	delete(st.qrPolls, token)
	delete(st.qrExpires, token)
	username := ""
	if acc, ok := s.store.accounts[userID]; ok {
		username = acc.user.Username
	}
	connectedAt := now.UTC()
	st.status = services.MTProtoStatus{Connected: true, Username: username, ConnectedAt: &connectedAt}
	return c.JSON(http.StatusOK, services.QRStatus{Status: services.QRConfirmed, Username: username})
}

func (s *Server) sendCode(c echo.Context) error {
	var req services.SendCodeRequest
	if err := s.bindValid(c, &req); err != nil {
		return err
	}
	hash := strings.ReplaceAll(uuid.NewString(), "-", "")

	s.store.mu.Lock()
	st := s.store.mtprotoFor(currentUserID(c))
	st.codeHash = hash
	st.status.Phone = req.Phone
	s.store.mu.Unlock()

	return c.JSON(http.StatusOK, services.SendCodeResponse{PhoneCodeHash: hash, Timeout: 60})
}

// verifyCode accepts any code for the hash last issued to the caller. Phone
// numbers ending in 99 require the two-step verification password.
func (s *Server) verifyCode(c echo.Context) error {
	var req services.VerifyCodeRequest
	if err := s.bindValid(c, &req); err != nil {
		return err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	st := s.store.mtprotoFor(currentUserID(c))
	if st.codeHash == "" || st.codeHash != req.PhoneCodeHash {
		return newAPIError(http.StatusBadRequest, "PHONE_CODE_INVALID", "The phone code hash is invalid or expired")
	}
	st.codeHash = ""
	st.status.Phone = req.Phone

	if strings.HasSuffix(req.Phone, "99") {
		st.needs2FA = true
		return c.JSON(http.StatusOK, services.VerifyResult{PasswordRequired: true})
	}
	connectedAt := s.now().UTC()
	st.status.Connected = true
	st.status.ConnectedAt = &connectedAt
	return c.JSON(http.StatusOK, services.VerifyResult{Connected: true})
}

func (s *Server) verifyPassword(c echo.Context) error {
	var req services.VerifyPasswordRequest
	if err := s.bindValid(c, &req); err != nil {
		return err
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	st := s.store.mtprotoFor(currentUserID(c))
	if !st.needs2FA {
		return errBadRequest("Two-step verification is not pending")
	}
	if req.Password != MTProtoPassword {
		return newAPIError(http.StatusBadRequest, "PASSWORD_HASH_INVALID", "The password is invalid")
	}
	st.needs2FA = false
	connectedAt := s.now().UTC()
	st.status.Connected = true
	st.status.ConnectedAt = &connectedAt
	return c.JSON(http.StatusOK, services.VerifyResult{Connected: true})
}

func (s *Server) disconnect(c echo.Context) error {
	s.store.mu.Lock()
	st := s.store.mtprotoFor(currentUserID(c))
	st.status = services.MTProtoStatus{}
	st.needs2FA = false
	st.codeHash = ""
	s.store.mu.Unlock()
	return c.JSON(http.StatusOK, services.Status{Success: true, Message: "Disconnected"})
}
