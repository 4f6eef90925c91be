package models

import (
	"html/template"
	"time"
)

// ImageView is the part of an uploaded image that is sent back to clients
type ImageView struct {
	DataURL   string `json:"data_url"`
	MediaType string `json:"media_type"`
	Name      string `json:"name,omitempty"`
	Size      int    `json:"size"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Format    string `json:"format,omitempty"`
}

// ReadingResponse is the JSON view of one session's controller state
type ReadingResponse struct {
	SessionID   string        `json:"session_id"`
	Phase       string        `json:"phase"`
	Image       *ImageView    `json:"image,omitempty"`
	Reading     string        `json:"reading,omitempty"`
	ReadingHTML template.HTML `json:"reading_html,omitempty"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// URLRequest asks for a reading of an image that lives at URL
type URLRequest struct {
	URL string `json:"url" form:"url" binding:"required"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// HealthResponse reports liveness and a little runtime state
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Time     string `json:"time"`
	Oracle   string `json:"oracle"`
	Sessions int    `json:"sessions"`
}
