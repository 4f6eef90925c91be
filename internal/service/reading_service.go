package service

import (
	"context"
	"errors"

	apperrors "github.com/anime-shed/palm-oracle-go/internal/errors"
	"github.com/anime-shed/palm-oracle-go/internal/logger"
	"github.com/anime-shed/palm-oracle-go/internal/reading"
	"github.com/anime-shed/palm-oracle-go/internal/render"
	"github.com/anime-shed/palm-oracle-go/internal/repository"
	"github.com/anime-shed/palm-oracle-go/internal/session"
	"github.com/anime-shed/palm-oracle-go/pkg/models"
)

// ReadingService is what the transport layer needs from a palm reading session
type ReadingService interface {
	// Open resolves a session id, creating a session when id is unknown
	Open(id string) (sessionID string, created bool)

	Upload(ctx context.Context, sessionID string, file reading.File) error
	UploadFromURL(ctx context.Context, sessionID string, imageURL string) error
	// RecordReadFailure puts a read failure into the session state for an
	// upload that never produced a file
	RecordReadFailure(ctx context.Context, sessionID string, name string, cause error) error
	Reset(sessionID string) error
	View(sessionID string) (*models.ReadingResponse, error)

	// Wait blocks until the session has no reading in flight
	Wait(ctx context.Context, sessionID string) error
	Sessions() int
}

// readingService implements ReadingService over a session manager
type readingService struct {
	sessions  *session.Manager
	imageRepo repository.ImageRepository
}

// NewReadingService creates a new reading service. imageRepo may be nil, in
// which case UploadFromURL is unavailable.
func NewReadingService(sessions *session.Manager, imageRepo repository.ImageRepository) ReadingService {
	return &readingService{
		sessions:  sessions,
		imageRepo: imageRepo,
	}
}

func (s *readingService) Open(id string) (string, bool) {
	sess, created := s.sessions.GetOrCreate(id)
	return sess.ID, created
}

func (s *readingService) controller(sessionID string) (*reading.Controller, error) {
	sess, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, apperrors.NewNotFoundError("session not found", nil).WithDetails(sessionID)
	}
	return sess.Controller, nil
}

// Upload selects file for the session and starts a reading
func (s *readingService) Upload(ctx context.Context, sessionID string, file reading.File) error {
	c, err := s.controller(sessionID)
	if err != nil {
		return err
	}
	return c.SelectImage(ctx, file)
}

// UploadFromURL downloads an image and selects it. Download failures land in
// the session state as a read failure.
func (s *readingService) UploadFromURL(ctx context.Context, sessionID string, imageURL string) error {
	c, err := s.controller(sessionID)
	if err != nil {
		return err
	}
	if s.imageRepo == nil {
		return apperrors.NewNotFoundError("remote images are not enabled", nil)
	}
	if c.Phase() == reading.PhaseLoading {
		return reading.ErrBusy
	}

	file, err := s.imageRepo.FetchImage(ctx, imageURL)
	if err != nil {
		if failErr := c.FailRead(ctx, imageURL, err); errors.Is(failErr, reading.ErrBusy) {
			return failErr
		}
		return err
	}
	return c.SelectImage(ctx, file)
}

func (s *readingService) RecordReadFailure(ctx context.Context, sessionID string, name string, cause error) error {
	c, err := s.controller(sessionID)
	if err != nil {
		return err
	}
	return c.FailRead(ctx, name, cause)
}

// Reset clears the session's image, reading and error
func (s *readingService) Reset(sessionID string) error {
	c, err := s.controller(sessionID)
	if err != nil {
		return err
	}
	c.Reset()
	return nil
}

// View returns the session state with the reading rendered as HTML
func (s *readingService) View(sessionID string) (*models.ReadingResponse, error) {
	c, err := s.controller(sessionID)
	if err != nil {
		return nil, err
	}
	return NewReadingResponse(sessionID, c.Snapshot()), nil
}

func (s *readingService) Wait(ctx context.Context, sessionID string) error {
	c, err := s.controller(sessionID)
	if err != nil {
		return err
	}
	return c.Wait(ctx)
}

func (s *readingService) Sessions() int {
	return s.sessions.Len()
}

// NewReadingResponse converts a controller snapshot to its transport form
func NewReadingResponse(sessionID string, snap reading.Snapshot) *models.ReadingResponse {
	resp := &models.ReadingResponse{
		SessionID: sessionID,
		Phase:     string(snap.Phase),
		Reading:   snap.Reading,
		Error:     snap.Error,
		ErrorKind: string(snap.ErrorKind),
		UpdatedAt: snap.UpdatedAt,
	}

	if snap.Image != nil {
		resp.Image = &models.ImageView{
			DataURL:   snap.Image.DataURL,
			MediaType: snap.Image.MediaType,
			Name:      snap.Image.Name,
			Size:      snap.Image.Metadata.Size,
			Width:     snap.Image.Metadata.Width,
			Height:    snap.Image.Metadata.Height,
			Format:    snap.Image.Metadata.Format,
		}
	}

	if snap.Reading != "" {
		html, err := render.HTML(snap.Reading)
		if err != nil {
			logger.WithError(err).WithField("session_id", sessionID).Warn("Failed to render reading")
		} else {
			resp.ReadingHTML = html
		}
	}

	return resp
}
