package services

import (
	"fmt"
	"net/url"
)

// API routes used by the services and served by the mock API.
const (
	PathLogin    = "/api/v1/auth/login"
	PathRegister = "/api/v1/auth/register"
	PathRefresh  = "/api/v1/auth/refresh"
	PathMe       = "/api/v1/auth/me"
	PathLogout   = "/api/v1/auth/logout"

	PathChannels = "/api/v1/channels"

	PathAnalyticsBase = "/api/v2/analytics/channels"

	PathMTProtoStatus         = "/api/v1/mtproto/status"
	PathMTProtoQRStart        = "/api/v1/mtproto/qr/start"
	PathMTProtoQRPoll         = "/api/v1/mtproto/qr/status"
	PathMTProtoSendCode       = "/api/v1/mtproto/send-code"
	PathMTProtoVerifyCode     = "/api/v1/mtproto/verify-code"
	PathMTProtoVerifyPassword = "/api/v1/mtproto/verify-2fa"
	PathMTProtoDisconnect     = "/api/v1/mtproto/disconnect"

	PathMedia = "/api/v1/media"

	PathHealth = "/health"
)

// Analytics report names appended to the channel analytics path.
const (
	ReportOverview     = "overview"
	ReportPostDynamics = "post-dynamics"
	ReportTopPosts     = "top-posts"
	ReportBestTime     = "best-time"
	ReportEngagement   = "engagement"
)

// ChannelPath returns the route of one channel.
func ChannelPath(id int64) string {
	return fmt.Sprintf("%s/%d", PathChannels, id)
}

// AnalyticsPath returns the route of a channel analytics report.
func AnalyticsPath(channelID int64, report string) string {
	return fmt.Sprintf("%s/%d/%s", PathAnalyticsBase, channelID, url.PathEscape(report))
}
