package services

import (
	"io"
	"time"
)

// LoginRequest authenticates with email and password.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=128"`
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Username string `json:"username,omitempty" validate:"omitempty,min=3,max=32"`
	FullName string `json:"full_name,omitempty" validate:"omitempty,max=128"`
}

// Channel is a Telegram channel tracked by AnalyticBot.
type Channel struct {
	ID              int64     `json:"id"`
	TelegramID      int64     `json:"telegram_id"`
	Username        string    `json:"username"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	SubscriberCount int64     `json:"subscriber_count"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
}

// CreateChannelRequest adds a channel by its public username.
type CreateChannelRequest struct {
	Username    string `json:"username" validate:"required,channel_username"`
	Title       string `json:"title,omitempty" validate:"omitempty,max=255"`
	Description string `json:"description,omitempty" validate:"omitempty,max=1024"`
}

// AnalyticsQuery selects a channel and a reporting period.
type AnalyticsQuery struct {
	ChannelID int64  `json:"channel_id" validate:"gt=0"`
	Period    string `json:"period" validate:"analytics_period"`
}

// Overview summarises a channel over a period.
type Overview struct {
	ChannelID        int64   `json:"channel_id"`
	Period           string  `json:"period"`
	Subscribers      int64   `json:"subscribers"`
	SubscriberGrowth int64   `json:"subscriber_growth"`
	Posts            int64   `json:"posts"`
	Views            int64   `json:"views"`
	AvgReach         float64 `json:"avg_reach"`
	EngagementRate   float64 `json:"engagement_rate"`
}

// DynamicsPoint is one bucket of the post dynamics series.
type DynamicsPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Views     int64     `json:"views"`
	Reactions int64     `json:"reactions"`
	Forwards  int64     `json:"forwards"`
}

// PostDynamics is a time series of post activity.
type PostDynamics struct {
	ChannelID int64           `json:"channel_id"`
	Period    string          `json:"period"`
	Points    []DynamicsPoint `json:"points"`
}

// TopPost is one entry of the top posts ranking.
type TopPost struct {
	ID          int64     `json:"id"`
	Text        string    `json:"text"`
	Views       int64     `json:"views"`
	Reactions   int64     `json:"reactions"`
	Forwards    int64     `json:"forwards"`
	PublishedAt time.Time `json:"published_at"`
}

// BestTimeSlot scores a weekday and hour for posting.
type BestTimeSlot struct {
	Weekday int     `json:"weekday"`
	Hour    int     `json:"hour"`
	Score   float64 `json:"score"`
}

// Engagement breaks down audience interaction.
type Engagement struct {
	ChannelID      int64   `json:"channel_id"`
	Period         string  `json:"period"`
	Rate           float64 `json:"rate"`
	Reactions      int64   `json:"reactions"`
	Comments       int64   `json:"comments"`
	Forwards       int64   `json:"forwards"`
	ViewsPerPost   float64 `json:"views_per_post"`
	ERRByFollowers float64 `json:"err_by_followers"`
}

// MTProtoStatus describes the user's Telegram client session.
type MTProtoStatus struct {
	Connected   bool       `json:"connected"`
	Phone       string     `json:"phone,omitempty"`
	Username    string     `json:"username,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// QRLogin is a pending QR code login.
type QRLogin struct {
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// QR login states.
const (
	QRPending          = "pending"
	QRConfirmed        = "confirmed"
	QRExpired          = "expired"
	QRPasswordRequired = "password_required"
)

// QRStatus is the result of polling a QR login.
type QRStatus struct {
	Status   string `json:"status"`
	Username string `json:"username,omitempty"`
}

// SendCodeRequest asks Telegram to send a login code.
type SendCodeRequest struct {
	Phone string `json:"phone" validate:"required,tg_phone"`
}

// SendCodeResponse identifies the code sent to the phone.
type SendCodeResponse struct {
	PhoneCodeHash string `json:"phone_code_hash"`
	Timeout       int    `json:"timeout,omitempty"`
}

// VerifyCodeRequest confirms a login code.
type VerifyCodeRequest struct {
	Phone         string `json:"phone" validate:"required,tg_phone"`
	Code          string `json:"phone_code" validate:"required,numeric,min=4,max=6"`
	PhoneCodeHash string `json:"phone_code_hash" validate:"required"`
}

// VerifyPasswordRequest completes a login protected by two-step verification.
type VerifyPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// VerifyResult reports whether the session is ready or needs the 2FA password.
type VerifyResult struct {
	Connected        bool   `json:"connected"`
	PasswordRequired bool   `json:"password_required"`
	Username         string `json:"username,omitempty"`
}

// MediaUpload describes a file to upload.
type MediaUpload struct {
	FileName    string
	ContentType string
	Content     io.Reader
	ChannelID   int64
	Caption     string
}

// MediaFile is a stored upload.
type MediaFile struct {
	ID          string    `json:"file_id"`
	URL         string    `json:"url"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ChannelID   int64     `json:"channel_id,omitempty"`
	Direct      bool      `json:"direct,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Status is returned by endpoints that only acknowledge.
type Status struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
