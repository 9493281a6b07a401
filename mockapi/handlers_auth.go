package mockapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/analyticbot/apiclient/services"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (s *Server) bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return errBadRequest("Invalid request body")
	}
	return c.Validate(req)
}

func (s *Server) login(c echo.Context) error {
	var req services.LoginRequest
	if err := s.bindValid(c, &req); err != nil {
		return err
	}
	user, ok := s.store.authenticate(req.Email, req.Password)
	if !ok {
		return errUnauthorized("Incorrect email or password")
	}
	tokens, err := s.tokens.Issue(user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokens)
}

func (s *Server) register(c echo.Context) error {
	var req services.RegisterRequest
	if err := s.bindValid(c, &req); err != nil {
		return err
	}
	user, err := s.store.register(req.Email, req.Password, req.Username)
	if err != nil {
		return err
	}
	tokens, err := s.tokens.Issue(user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tokens)
}

func (s *Server) refresh(c echo.Context) error {
	var req refreshRequest
	if err := s.bindValid(c, &req); err != nil {
		return err
	}
	userID, err := s.tokens.Consume(req.RefreshToken)
	if err != nil {
		return errUnauthorized("Invalid or expired refresh token")
	}
	user, ok := s.store.user(userID)
	if !ok {
		return errUnauthorized("User no longer exists")
	}
	tokens, err := s.tokens.Issue(user)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokens)
}

func (s *Server) me(c echo.Context) error {
	user, ok := s.store.user(currentUserID(c))
	if !ok {
		return errNotFound("user")
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) logout(c echo.Context) error {
	s.tokens.RevokeUser(currentUserID(c))
	return c.JSON(http.StatusOK, services.Status{Success: true, Message: "Logged out"})
}
