// Package reading drives one user's upload, analyse and reset flow.
package reading

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	apperrors "github.com/anime-shed/palm-oracle-go/internal/errors"
	"github.com/anime-shed/palm-oracle-go/internal/imagedata"
	"github.com/anime-shed/palm-oracle-go/internal/logger"
	"github.com/anime-shed/palm-oracle-go/internal/observer"
	"github.com/anime-shed/palm-oracle-go/internal/oracle"

	"github.com/sirupsen/logrus"
)

// ErrBusy is returned when a new image is selected while a reading is in flight
var ErrBusy = apperrors.NewBusyError("a reading is already in progress")

// Dispatcher runs analysis jobs off the caller's goroutine.
// Submit reports false when the job was not accepted.
type Dispatcher interface {
	Submit(job func()) bool
}

type goDispatcher struct{}

func (goDispatcher) Submit(job func()) bool {
	go job()
	return true
}

// Option configures a Controller
type Option func(*Controller)

// WithDispatcher runs analyses on d instead of a fresh goroutine each
func WithDispatcher(d Dispatcher) Option {
	return func(c *Controller) { c.dispatcher = d }
}

// WithPublisher reports lifecycle events to s
func WithPublisher(s observer.Subject) Option {
	return func(c *Controller) { c.publisher = s }
}

// WithSessionID tags logs and events with the owning session
func WithSessionID(id string) Option {
	return func(c *Controller) { c.sessionID = id }
}

// WithPrompt replaces the instruction sent with every image
func WithPrompt(prompt string) Option {
	return func(c *Controller) { c.prompt = prompt }
}

// WithLogger replaces the package logger
func WithLogger(l *logrus.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// Controller is the upload/analyse/reset state machine. It allows at most
// one outstanding request to the oracle.
type Controller struct {
	oracle     oracle.Oracle
	dispatcher Dispatcher
	publisher  observer.Subject
	sessionID  string
	prompt     string
	log        *logrus.Logger
	now        func() time.Time

	mu         sync.Mutex
	st         state
	generation uint64
	idle       chan struct{}
}

// NewController creates a controller in the Idle phase
func NewController(o oracle.Oracle, opts ...Option) *Controller {
	c := &Controller{
		oracle:     o,
		dispatcher: goDispatcher{},
		prompt:     oracle.PalmReadingPrompt,
		log:        logger.Logger,
		now:        time.Now,
		idle:       make(chan struct{}),
	}
	close(c.idle)
	for _, opt := range opts {
		opt(c)
	}
	c.st.updatedAt = c.now()
	return c
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.snapshot()
}

// Phase returns the current phase
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.phase()
}

// SelectImage validates and encodes f, then starts an analysis. Failures are
// recorded in the controller state and also returned as *AppError. While a
// reading is in flight nothing is recorded and ErrBusy is returned.
func (c *Controller) SelectImage(ctx context.Context, f File) error {
	c.mu.Lock()
	busy := c.st.loading
	c.mu.Unlock()
	if busy {
		return ErrBusy
	}

	if !imagedata.IsImageType(f.MediaType) {
		err := apperrors.NewValidationError("selected file is not an image", nil).WithDetails(f.MediaType)
		return c.reject(ctx, f, MessageInvalidType, err)
	}

	if f.Content == nil {
		return c.reject(ctx, f, MessageReadFailure, apperrors.NewReadError("selected file has no content", nil))
	}
	data, err := io.ReadAll(f.Content)
	if err != nil {
		return c.reject(ctx, f, MessageReadFailure, apperrors.NewReadError("failed to read selected file", err))
	}
	if len(data) == 0 {
		return c.reject(ctx, f, MessageReadFailure, apperrors.NewReadError("selected file is empty", nil))
	}

	if sniffed := imagedata.Sniff(data); sniffed != "" && !strings.EqualFold(sniffed, f.MediaType) {
		c.logEntry().WithFields(logrus.Fields{
			"declared": f.MediaType,
			"sniffed":  sniffed,
			"name":     f.Name,
		}).Debug("Declared media type differs from content")
	}

	img := Image{
		DataURL:   imagedata.Encode(data, f.MediaType),
		MediaType: f.MediaType,
		Name:      f.Name,
		Metadata:  imagedata.Describe(data),
	}

	return c.Analyze(ctx, img)
}

// FailRead records that an image could not be obtained, for sources other
// than a local file. cause is only logged.
func (c *Controller) FailRead(ctx context.Context, name string, cause error) error {
	err := c.reject(ctx, File{Name: name}, MessageReadFailure, apperrors.NewReadError("failed to obtain image", cause))
	if err != ErrBusy {
		c.logEntry().WithError(cause).WithField("name", name).Warn("Image could not be obtained")
	}
	return err
}

// Analyze enters Loading and issues exactly one request for img. It returns
// once the request is dispatched; the outcome lands in the state.
func (c *Controller) Analyze(ctx context.Context, img Image) error {
	c.mu.Lock()
	if c.st.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.generation++
	gen := c.generation
	c.st.image = &img
	c.st.reading = ""
	c.st.errMsg = ""
	c.st.errKind = ""
	c.st.loading = true
	c.st.updatedAt = c.now()
	c.idle = make(chan struct{})
	c.mu.Unlock()

	// The request outlives the caller's request scope; only cancellation is dropped
	runCtx := context.WithoutCancel(ctx)
	if !c.dispatcher.Submit(func() { c.run(runCtx, gen, img) }) {
		c.settle(runCtx, gen, img, "", apperrors.NewInternalError("analysis could not be scheduled", nil), 0)
	}
	return nil
}

// Reset clears image, reading and error unconditionally. A request still in
// flight is abandoned and its result discarded.
func (c *Controller) Reset() {
	c.mu.Lock()
	wasLoading := c.st.loading
	c.generation++
	c.st.clear()
	c.st.loading = false
	c.st.updatedAt = c.now()
	if wasLoading {
		close(c.idle)
	}
	c.mu.Unlock()

	c.publish(context.Background(), observer.ReadingEvent{
		EventType: observer.SessionReset,
		Success:   true,
		Metadata:  map[string]interface{}{"abandoned_request": wasLoading},
	})
}

// Wait blocks until no reading is in flight or ctx is done
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) run(ctx context.Context, gen uint64, img Image) {
	start := time.Now()
	c.publish(ctx, observer.ReadingEvent{
		EventType:  observer.ReadingStarted,
		MediaType:  img.MediaType,
		ImageBytes: img.Metadata.Size,
		Success:    true,
	})

	text, err := c.divine(ctx, img)
	c.settle(ctx, gen, img, text, err, time.Since(start))
}

// divine converts every failure, panics included, into an error
func (c *Controller) divine(ctx context.Context, img Image) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = apperrors.NewInternalError("oracle panicked", fmt.Errorf("%v", r))
		}
	}()

	data, mediaType, err := imagedata.Split(img.DataURL)
	if err != nil {
		return "", apperrors.NewReadError("malformed image envelope", err)
	}

	return c.oracle.Divine(ctx, oracle.Request{
		Data:      data,
		MediaType: mediaType,
		Prompt:    c.prompt,
	})
}

func (c *Controller) settle(ctx context.Context, gen uint64, img Image, text string, err error, elapsed time.Duration) {
	c.mu.Lock()
	if gen != c.generation || !c.st.loading {
		c.mu.Unlock()
		c.publish(ctx, observer.ReadingEvent{
			EventType:      observer.ReadingDiscarded,
			MediaType:      img.MediaType,
			ProcessingTime: elapsed,
			Success:        err == nil,
		})
		return
	}

	c.st.loading = false
	c.st.updatedAt = c.now()
	if err != nil {
		c.st.fail(&img, MessageServiceFailure, apperrors.TypeOf(err))
	} else if text == "" {
		c.st.reading = FallbackReading
	} else {
		c.st.reading = text
	}
	close(c.idle)
	c.mu.Unlock()

	if err != nil {
		c.logEntry().WithError(err).WithFields(logrus.Fields{
			"oracle":             c.oracle.Name(),
			"media_type":         img.MediaType,
			"processing_time_ms": elapsed.Milliseconds(),
		}).Error("Error analyzing palm")
		c.publish(ctx, observer.ReadingEvent{
			EventType:      observer.ReadingFailed,
			MediaType:      img.MediaType,
			ImageBytes:     img.Metadata.Size,
			ProcessingTime: elapsed,
			ErrorKind:      string(apperrors.TypeOf(err)),
			ErrorMessage:   err.Error(),
		})
		return
	}

	c.publish(ctx, observer.ReadingEvent{
		EventType:      observer.ReadingCompleted,
		MediaType:      img.MediaType,
		ImageBytes:     img.Metadata.Size,
		ProcessingTime: elapsed,
		Success:        true,
		Metadata:       map[string]interface{}{"empty_response": text == ""},
	})
}

// reject records a validation or read failure and returns err. It replaces
// any previous image or reading so the Error phase never carries stale
// results. A reading that started in the meantime wins: the failure is
// dropped and ErrBusy returned.
func (c *Controller) reject(ctx context.Context, f File, msg string, err *apperrors.AppError) error {
	c.mu.Lock()
	if c.st.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.st.fail(nil, msg, err.Type)
	c.st.updatedAt = c.now()
	c.mu.Unlock()

	c.publish(ctx, observer.ReadingEvent{
		EventType:    observer.ImageRejected,
		MediaType:    f.MediaType,
		ErrorKind:    string(err.Type),
		ErrorMessage: err.Error(),
		Metadata:     map[string]interface{}{"file_name": f.Name},
	})
	return err
}

func (c *Controller) publish(ctx context.Context, event observer.ReadingEvent) {
	if c.publisher == nil {
		return
	}
	event.SessionID = c.sessionID
	c.publisher.NotifyObservers(ctx, event)
}

func (c *Controller) logEntry() *logrus.Entry {
	return c.log.WithField("session_id", c.sessionID)
}
