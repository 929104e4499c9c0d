package main

import (
	"time"
)

// EmailMessage represents one newly observed outbound email pending relay.
// Body is already plaintext: both fetchers strip HTML when no text part is
// available.
type EmailMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	To      string `json:"to"`
	Body    string `json:"body"`
}

// Credentials holds the Gmail OAuth2 credentials record
type Credentials struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RefreshToken string `json:"refreshToken"`
}

// Configured reports whether all three credential values are present
func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
}

// RelayLog represents one per-recipient dispatch outcome in the database
type RelayLog struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID   string    `json:"message_id" gorm:"type:varchar(255);not null;index"`
	Recipient   string    `json:"recipient" gorm:"type:varchar(255);not null"`
	Destination string    `json:"destination" gorm:"type:varchar(64)"`
	Status      string    `json:"status" gorm:"type:varchar(50);not null"` // relayed, failed, skipped
	ErrorMsg    string    `json:"error_msg" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for RelayLog
func (RelayLog) TableName() string {
	return "relay_logs"
}

// ContactRequest represents the request body for adding a contact
type ContactRequest struct {
	Email string `json:"email" binding:"required"`
	Phone string `json:"phone" binding:"required"`
}

// CredentialsRequest represents the request body for updating credentials
type CredentialsRequest struct {
	ClientID     string `json:"clientId" binding:"required"`
	ClientSecret string `json:"clientSecret" binding:"required"`
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status             string `json:"status"`
	MessagingConnected bool   `json:"messagingConnected"`
	ProcessedCount     int    `json:"processedCount"`
}

// MessagingInfo describes the authenticated messaging session
type MessagingInfo struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

// MessagingStatusResponse represents the messaging channel status
type MessagingStatusResponse struct {
	Connected bool           `json:"connected"`
	Info      *MessagingInfo `json:"info,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
