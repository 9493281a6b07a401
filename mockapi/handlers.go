package mockapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/analyticbot/apiclient/services"
	"github.com/analyticbot/apiclient/validation"
)

// MTProtoPassword is the two-step verification password the mock accepts.
const MTProtoPassword = "cloud-password"

// qrConfirmAfter is the number of polls before a QR login is confirmed.
const qrConfirmAfter = 2

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

func int64Param(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadRequest("invalid " + name)
	}
	return id, nil
}

func (s *Server) listChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.listChannels())
}

func (s *Server) getChannel(c echo.Context) error {
	id, err := int64Param(c, "id")
	if err != nil {
		return err
	}
	ch, ok := s.store.channel(id)
	if !ok {
		return errNotFound("channel")
	}
	return c.JSON(http.StatusOK, ch)
}

func (s *Server) createChannel(c echo.Context) error {
	var req services.CreateChannelRequest
	if err := s.bindValid(c, &req); err != nil {
		return err
	}
	ch, err := s.store.createChannel(req.Username, req.Title, req.Description, s.now())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ch)
}

func (s *Server) deleteChannel(c echo.Context) error {
	id, err := int64Param(c, "id")
	if err != nil {
		return err
	}
	if !s.store.deleteChannel(id) {
		return errNotFound("channel")
	}
	return c.NoContent(http.StatusNoContent)
}

type reportArgs struct {
	channel services.Channel
	period  string
	to      time.Time
}

func (s *Server) reportArgs(c echo.Context) (reportArgs, error) {
	id, err := int64Param(c, "id")
	if err != nil {
		return reportArgs{}, err
	}
	ch, ok := s.store.channel(id)
	if !ok {
		return reportArgs{}, errNotFound("channel")
	}
	period := c.QueryParam("period")
	if period == "" {
		period = "30d"
	}
	if !validation.IsPeriod(period) {
		return reportArgs{}, errBadRequest("unsupported period " + period)
	}
	to := s.now()
	if raw := c.QueryParam("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			return reportArgs{}, errBadRequest("invalid to")
		}
	}
	return reportArgs{channel: ch, period: period, to: to}, nil
}

// report adapts a generator into a handler for one analytics report.
func (s *Server) report(gen func(c echo.Context, a reportArgs) (any, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		args, err := s.reportArgs(c)
		if err != nil {
			return err
		}
		out, err := gen(c, args)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, out)
	}
}

func (s *Server) registerAnalytics(g *echo.Group) {
	g.GET("/:id/"+services.ReportOverview, s.report(func(_ echo.Context, a reportArgs) (any, error) {
		return overview(a.channel, a.period), nil
	}))
	g.GET("/:id/"+services.ReportPostDynamics, s.report(func(_ echo.Context, a reportArgs) (any, error) {
		return postDynamics(a.channel, a.period, a.to), nil
	}))
	g.GET("/:id/"+services.ReportTopPosts, s.report(func(c echo.Context, a reportArgs) (any, error) {
		limit := services.DefaultTopPostsLimit
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 100 {
				return nil, errBadRequest("limit must be between 1 and 100")
			}
			limit = n
		}
		return topPosts(a.channel, a.period, a.to, limit), nil
	}))
	g.GET("/:id/"+services.ReportBestTime, s.report(func(_ echo.Context, a reportArgs) (any, error) {
		return bestTime(a.channel, a.period), nil
	}))
	g.GET("/:id/"+services.ReportEngagement, s.report(func(_ echo.Context, a reportArgs) (any, error) {
		return engagement(a.channel, a.period), nil
	}))
}

func (s *Server) upload(direct bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return errBadRequest("file is required")
		}
		var channelID int64
		if raw := c.FormValue("channel_id"); raw != "" {
			if channelID, err = strconv.ParseInt(raw, 10, 64); err != nil {
				return errBadRequest("invalid channel_id")
			}
			if _, ok := s.store.channel(channelID); !ok {
				return errNotFound("channel")
			}
		}
		if direct && channelID == 0 {
			return errBadRequest("channel_id is required for direct uploads")
		}
		contentType := fh.Header.Get(echo.HeaderContentType)
		if contentType == "" {
			contentType = echo.MIMEOctetStream
		}
		file := s.store.addMedia(services.MediaFile{
			FileName:    fh.Filename,
			ContentType: contentType,
			Size:        fh.Size,
			ChannelID:   channelID,
			Direct:      direct,
			UploadedAt:  s.now().UTC(),
		})
		return c.JSON(http.StatusCreated, file)
	}
}

func (s *Server) listMedia(c echo.Context) error {
	var channelID int64
	if raw := c.QueryParam("channel_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return errBadRequest("invalid channel_id")
		}
		channelID = id
	}
	return c.JSON(http.StatusOK, s.store.listMedia(channelID))
}
