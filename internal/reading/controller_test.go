package reading

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	apperrors "github.com/anime-shed/palm-oracle-go/internal/errors"
	"github.com/anime-shed/palm-oracle-go/internal/observer"
	"github.com/anime-shed/palm-oracle-go/internal/oracle"
)

// fakeOracle records every request and answers with a canned result.
// When release is non-nil each call blocks until it is closed.
type fakeOracle struct {
	mu      sync.Mutex
	calls   []oracle.Request
	text    string
	err     error
	panics  bool
	release chan struct{}
}

func (f *fakeOracle) Divine(ctx context.Context, req oracle.Request) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	release := f.release
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	if f.panics {
		panic("provider exploded")
	}
	return f.text, f.err
}

func (f *fakeOracle) Name() string { return "fake" }

func (f *fakeOracle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recordingSubject delivers events synchronously
type recordingSubject struct {
	mu     sync.Mutex
	events []observer.EventType
	seen   chan observer.EventType
}

func newRecordingSubject() *recordingSubject {
	return &recordingSubject{seen: make(chan observer.EventType, 32)}
}

func (r *recordingSubject) Subscribe(observer.Observer)   {}
func (r *recordingSubject) Unsubscribe(observer.Observer) {}
func (r *recordingSubject) NotifyObservers(ctx context.Context, event observer.ReadingEvent) {
	r.mu.Lock()
	r.events = append(r.events, event.EventType)
	r.mu.Unlock()
	r.seen <- event.EventType
}

func (r *recordingSubject) types() []observer.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]observer.EventType(nil), r.events...)
}

type rejectingDispatcher struct{}

func (rejectingDispatcher) Submit(func()) bool { return false }

// gatedReader announces the first Read, then fails once gate is closed
type gatedReader struct {
	started chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedReader() *gatedReader {
	return &gatedReader{started: make(chan struct{}), gate: make(chan struct{})}
}

func (g *gatedReader) Read(p []byte) (int, error) {
	g.once.Do(func() { close(g.started) })
	<-g.gate
	return 0, errors.New("disk unplugged")
}

// untouchableReader fails the test if anything reads it
type untouchableReader struct{ t *testing.T }

func (u untouchableReader) Read(p []byte) (int, error) {
	u.t.Error("Expected file content not to be read")
	return 0, io.EOF
}

func palmPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{230, 190, 170, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("Timed out waiting for reading to settle: %v", err)
	}
}

func TestNewController_StartsIdle(t *testing.T) {
	c := NewController(&fakeOracle{})
	snap := c.Snapshot()
	if snap.Phase != PhaseIdle {
		t.Errorf("Expected idle, got %s", snap.Phase)
	}
	if snap.Image != nil || snap.Reading != "" || snap.Error != "" {
		t.Errorf("Expected empty state, got %+v", snap)
	}
}

func TestSelectImage_RejectsNonImageTypes(t *testing.T) {
	types := []string{"text/plain", "application/pdf", "application/octet-stream", "", "video/mp4"}

	for _, mediaType := range types {
		t.Run(mediaType, func(t *testing.T) {
			fake := &fakeOracle{text: "unused"}
			c := NewController(fake)

			err := c.SelectImage(context.Background(), File{Name: "x", MediaType: mediaType, Content: untouchableReader{t}})
			if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}

			snap := c.Snapshot()
			if snap.Phase != PhaseError || snap.Error != MessageInvalidType {
				t.Errorf("Expected error phase with validation message, got %+v", snap)
			}
			if snap.ErrorKind != apperrors.ErrorTypeValidation {
				t.Errorf("Expected validation kind, got %s", snap.ErrorKind)
			}
			if fake.callCount() != 0 {
				t.Errorf("Expected no oracle calls, got %d", fake.callCount())
			}
		})
	}
}

func TestSelectImage_DisguisedTextFile(t *testing.T) {
	fake := &fakeOracle{text: "unused"}
	c := NewController(fake)

	err := c.SelectImage(context.Background(), File{
		Name:      "palm.png",
		MediaType: "text/plain",
		Content:   untouchableReader{t},
	})
	if err == nil {
		t.Fatal("Expected error for disguised text file")
	}
	snap := c.Snapshot()
	if snap.Phase != PhaseError || snap.Error != MessageInvalidType {
		t.Errorf("Expected immediate validation error, got %+v", snap)
	}
	if fake.callCount() != 0 {
		t.Errorf("Expected zero oracle calls, got %d", fake.callCount())
	}
}

func TestSelectImage_ReadFailure(t *testing.T) {
	tests := []struct {
		name    string
		content io.Reader
	}{
		{"reader error", iotest.ErrReader(errors.New("disk vanished"))},
		{"empty file", strings.NewReader("")},
		{"no content", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeOracle{text: "unused"}
			c := NewController(fake)

			err := c.SelectImage(context.Background(), File{Name: "palm.jpg", MediaType: "image/jpeg", Content: tt.content})
			if !apperrors.IsType(err, apperrors.ErrorTypeRead) {
				t.Errorf("Expected read error, got %v", err)
			}
			snap := c.Snapshot()
			if snap.Phase != PhaseError || snap.Error != MessageReadFailure {
				t.Errorf("Expected read failure message, got %+v", snap)
			}
			if fake.callCount() != 0 {
				t.Errorf("Expected no oracle calls, got %d", fake.callCount())
			}
		})
	}
}

func TestSelectImage_PassesThroughLoading(t *testing.T) {
	data := palmPNG(t, 4, 4)
	fake := &fakeOracle{text: "## 生命线\n绵长。", release: make(chan struct{})}
	c := NewController(fake)

	if err := c.SelectImage(context.Background(), File{Name: "palm.png", MediaType: "image/png", Content: bytes.NewReader(data)}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	snap := c.Snapshot()
	if snap.Phase != PhaseLoading {
		t.Fatalf("Expected loading, got %s", snap.Phase)
	}
	if snap.Image == nil || !strings.HasPrefix(snap.Image.DataURL, "data:image/png;base64,") {
		t.Errorf("Expected encoded image while loading, got %+v", snap.Image)
	}
	if snap.Reading != "" || snap.Error != "" {
		t.Errorf("Expected no reading or error while loading, got %+v", snap)
	}

	close(fake.release)
	waitIdle(t, c)

	if c.Phase() != PhaseResult {
		t.Errorf("Expected result, got %s", c.Phase())
	}
	if fake.callCount() != 1 {
		t.Errorf("Expected exactly one oracle call, got %d", fake.callCount())
	}
}

func TestSelectImage_ConcreteScenario(t *testing.T) {
	const want = "## 感情线\n深邃而绵长。"
	data := palmPNG(t, 10, 10)
	fake := &fakeOracle{text: want}
	c := NewController(fake)

	if err := c.SelectImage(context.Background(), File{Name: "palm.png", MediaType: "image/png", Content: bytes.NewReader(data)}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	waitIdle(t, c)

	if fake.callCount() != 1 {
		t.Fatalf("Expected one call, got %d", fake.callCount())
	}
	req := fake.calls[0]
	if req.MediaType != "image/png" {
		t.Errorf("Expected image/png, got %s", req.MediaType)
	}
	if !bytes.Equal(req.Data, data) {
		t.Error("Expected raw payload to match the selected file")
	}
	if req.Prompt != oracle.PalmReadingPrompt {
		t.Error("Expected the palm reading prompt")
	}

	snap := c.Snapshot()
	if snap.Phase != PhaseResult || snap.Reading != want {
		t.Errorf("Expected result %q, got %+v", want, snap)
	}
	if snap.Error != "" {
		t.Errorf("Expected no error, got %q", snap.Error)
	}
	if snap.Image.Metadata.Width != 10 || snap.Image.Metadata.Height != 10 {
		t.Errorf("Expected 10x10 metadata, got %+v", snap.Image.Metadata)
	}
}

func TestAnalyze_EmptyTextUsesFallback(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"", FallbackReading},
		// only an absent reply is replaced; whitespace is what the model said
		{"   \n", "   \n"},
	}

	for _, tt := range tests {
		fake := &fakeOracle{text: tt.text}
		c := NewController(fake)

		if err := c.SelectImage(context.Background(), File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		waitIdle(t, c)

		snap := c.Snapshot()
		if snap.Phase != PhaseResult || snap.Reading != tt.want {
			t.Errorf("Expected reading %q for %q, got %+v", tt.want, tt.text, snap)
		}
	}
}

func TestAnalyze_ServiceFailure(t *testing.T) {
	tests := []struct {
		name     string
		fake     *fakeOracle
		wantKind apperrors.ErrorType
	}{
		{"timeout", &fakeOracle{err: apperrors.NewTimeoutError("slow", context.DeadlineExceeded)}, apperrors.ErrorTypeTimeout},
		{"plain error", &fakeOracle{err: errors.New("malformed response")}, apperrors.ErrorTypeInternal},
		{"panic", &fakeOracle{panics: true}, apperrors.ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(tt.fake)
			if err := c.SelectImage(context.Background(), File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))}); err != nil {
				t.Fatalf("Expected no error from SelectImage, got %v", err)
			}
			waitIdle(t, c)

			snap := c.Snapshot()
			if snap.Phase != PhaseError || snap.Error != MessageServiceFailure {
				t.Errorf("Expected generic service failure, got %+v", snap)
			}
			if snap.Reading != "" {
				t.Errorf("Expected no reading, got %q", snap.Reading)
			}
			if snap.ErrorKind != tt.wantKind {
				t.Errorf("Expected kind %s, got %s", tt.wantKind, snap.ErrorKind)
			}
		})
	}
}

func TestAnalyze_MalformedEnvelope(t *testing.T) {
	fake := &fakeOracle{text: "unused"}
	c := NewController(fake)

	if err := c.Analyze(context.Background(), Image{DataURL: "not-a-data-url", MediaType: "image/png"}); err != nil {
		t.Fatalf("Expected no error from Analyze, got %v", err)
	}
	waitIdle(t, c)

	snap := c.Snapshot()
	if snap.Phase != PhaseError || snap.Error != MessageServiceFailure {
		t.Errorf("Expected service failure, got %+v", snap)
	}
	if fake.callCount() != 0 {
		t.Errorf("Expected no oracle call for malformed envelope, got %d", fake.callCount())
	}
}

func TestAnalyze_DispatcherRejects(t *testing.T) {
	fake := &fakeOracle{text: "unused"}
	c := NewController(fake, WithDispatcher(rejectingDispatcher{}))

	if err := c.SelectImage(context.Background(), File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	snap := c.Snapshot()
	if snap.Phase != PhaseError || snap.Error != MessageServiceFailure {
		t.Errorf("Expected service failure when dispatch is refused, got %+v", snap)
	}
	if fake.callCount() != 0 {
		t.Errorf("Expected no oracle call, got %d", fake.callCount())
	}
}

func TestSelectImage_BusyWhileLoading(t *testing.T) {
	fake := &fakeOracle{text: "first", release: make(chan struct{})}
	c := NewController(fake)

	if err := c.SelectImage(context.Background(), File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	err := c.SelectImage(context.Background(), File{MediaType: "text/plain", Content: untouchableReader{t}})
	if !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	if c.Phase() != PhaseLoading {
		t.Errorf("Expected busy selection to leave loading untouched, got %s", c.Phase())
	}

	close(fake.release)
	waitIdle(t, c)

	if fake.callCount() != 1 {
		t.Errorf("Expected exactly one outstanding request, got %d", fake.callCount())
	}
	if c.Snapshot().Reading != "first" {
		t.Errorf("Expected first reading, got %q", c.Snapshot().Reading)
	}
}

func TestReset_FromResultAndError(t *testing.T) {
	tests := []struct {
		name  string
		fake  *fakeOracle
		file  File
		phase Phase
	}{
		{"result", &fakeOracle{text: "reading"}, File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))}, PhaseResult},
		{"service error", &fakeOracle{err: errors.New("down")}, File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))}, PhaseError},
		{"validation error", &fakeOracle{}, File{MediaType: "text/plain", Content: strings.NewReader("hi")}, PhaseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(tt.fake)
			_ = c.SelectImage(context.Background(), tt.file)
			waitIdle(t, c)

			if c.Phase() != tt.phase {
				t.Fatalf("Expected %s before reset, got %s", tt.phase, c.Phase())
			}

			c.Reset()
			snap := c.Snapshot()
			if snap.Phase != PhaseIdle {
				t.Errorf("Expected idle after reset, got %s", snap.Phase)
			}
			if snap.Image != nil || snap.Reading != "" || snap.Error != "" || snap.ErrorKind != "" {
				t.Errorf("Expected all fields cleared, got %+v", snap)
			}
		})
	}
}

func TestReset_WhileLoadingDiscardsLateResult(t *testing.T) {
	fake := &fakeOracle{text: "too late", release: make(chan struct{})}
	subject := newRecordingSubject()
	c := NewController(fake, WithPublisher(subject), WithSessionID("s-1"))

	if err := c.SelectImage(context.Background(), File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	c.Reset()
	if c.Phase() != PhaseIdle {
		t.Fatalf("Expected idle after reset, got %s", c.Phase())
	}
	waitIdle(t, c)

	close(fake.release)
	deadline := time.After(5 * time.Second)
	for discarded := false; !discarded; {
		select {
		case ev := <-subject.seen:
			discarded = ev == observer.ReadingDiscarded
		case <-deadline:
			t.Fatal("Timed out waiting for the late result to be discarded")
		}
	}

	snap := c.Snapshot()
	if snap.Phase != PhaseIdle || snap.Reading != "" {
		t.Errorf("Expected late result to be discarded, got %+v", snap)
	}
}

func TestSelectImage_RecoversFromError(t *testing.T) {
	fake := &fakeOracle{text: "second chance"}
	c := NewController(fake)

	_ = c.SelectImage(context.Background(), File{MediaType: "text/plain", Content: strings.NewReader("no")})
	if c.Phase() != PhaseError {
		t.Fatalf("Expected error phase, got %s", c.Phase())
	}

	if err := c.SelectImage(context.Background(), File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	waitIdle(t, c)

	snap := c.Snapshot()
	if snap.Phase != PhaseResult || snap.Error != "" {
		t.Errorf("Expected result with cleared error, got %+v", snap)
	}
}

func TestSelectImage_InvalidAfterResultClearsReading(t *testing.T) {
	c := NewController(&fakeOracle{text: "old reading"})
	_ = c.SelectImage(context.Background(), File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))})
	waitIdle(t, c)

	_ = c.SelectImage(context.Background(), File{MediaType: "application/zip", Content: untouchableReader{t}})

	snap := c.Snapshot()
	if snap.Reading != "" || snap.Image != nil {
		t.Errorf("Expected reading and image to be cleared alongside the error, got %+v", snap)
	}
	if snap.Phase != PhaseError {
		t.Errorf("Expected error phase, got %s", snap.Phase)
	}
}

func TestController_PublishesLifecycle(t *testing.T) {
	subject := newRecordingSubject()
	c := NewController(&fakeOracle{text: "ok"}, WithPublisher(subject))

	_ = c.SelectImage(context.Background(), File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))})
	waitIdle(t, c)
	c.Reset()

	// ReadingCompleted is published after the idle signal, so drain until it shows up
	deadline := time.After(5 * time.Second)
	for completed := false; !completed; {
		select {
		case ev := <-subject.seen:
			completed = ev == observer.ReadingCompleted
		case <-deadline:
			t.Fatalf("Timed out waiting for completion event, saw %v", subject.types())
		}
	}

	got := subject.types()
	want := map[observer.EventType]bool{
		observer.ReadingStarted:   false,
		observer.ReadingCompleted: false,
		observer.SessionReset:     false,
	}
	for _, ev := range got {
		if _, ok := want[ev]; ok {
			want[ev] = true
		}
	}
	for ev, seen := range want {
		if !seen {
			t.Errorf("Expected event %s, got %v", ev, got)
		}
	}
}

func TestWait_RespectsContext(t *testing.T) {
	fake := &fakeOracle{text: "x", release: make(chan struct{})}
	defer close(fake.release)
	c := NewController(fake)

	_ = c.SelectImage(context.Background(), File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestSelectImage_ReadFailureAfterAnotherReadingStarted(t *testing.T) {
	fake := &fakeOracle{text: "## 生命线\n悠长。", release: make(chan struct{})}
	c := NewController(fake)
	ctx := context.Background()

	slow := newGatedReader()
	slowErr := make(chan error, 1)
	go func() {
		slowErr <- c.SelectImage(ctx, File{Name: "slow.png", MediaType: "image/png", Content: slow})
	}()
	<-slow.started

	if err := c.SelectImage(ctx, File{Name: "palm.png", MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 4, 4))}); err != nil {
		t.Fatalf("Expected second selection to start a reading, got %v", err)
	}
	if c.Phase() != PhaseLoading {
		t.Fatalf("Expected loading, got %s", c.Phase())
	}

	close(slow.gate)
	if err := <-slowErr; !errors.Is(err, ErrBusy) {
		t.Errorf("Expected late read failure to report ErrBusy, got %v", err)
	}
	snap := c.Snapshot()
	if snap.Phase != PhaseLoading || snap.Error != "" || snap.Image == nil || snap.Image.Name != "palm.png" {
		t.Errorf("Expected loading state to be untouched, got %+v", snap)
	}

	close(fake.release)
	waitIdle(t, c)

	snap = c.Snapshot()
	if snap.Phase != PhaseResult || snap.Reading != "## 生命线\n悠长。" {
		t.Errorf("Expected result, got %+v", snap)
	}
	if snap.Error != "" || snap.ErrorKind != "" {
		t.Errorf("Expected no error alongside the reading, got %q (%s)", snap.Error, snap.ErrorKind)
	}
	if snap.Image == nil || snap.Image.Name != "palm.png" {
		t.Errorf("Expected the analysed image to be kept, got %+v", snap.Image)
	}
	if fake.callCount() != 1 {
		t.Errorf("Expected 1 oracle call, got %d", fake.callCount())
	}
}

func TestFailRead_WhileLoading(t *testing.T) {
	fake := &fakeOracle{text: "ok", release: make(chan struct{})}
	c := NewController(fake)
	_ = c.SelectImage(context.Background(), File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))})

	if err := c.FailRead(context.Background(), "remote.png", errors.New("404")); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
	close(fake.release)
	waitIdle(t, c)

	snap := c.Snapshot()
	if snap.Phase != PhaseResult || snap.Reading != "ok" || snap.Error != "" {
		t.Errorf("Expected the reading to land without an error, got %+v", snap)
	}
}

func TestFailRead(t *testing.T) {
	c := NewController(&fakeOracle{text: "old"})
	_ = c.SelectImage(context.Background(), File{MediaType: "image/png", Content: bytes.NewReader(palmPNG(t, 2, 2))})
	waitIdle(t, c)

	err := c.FailRead(context.Background(), "remote.png", errors.New("404"))
	if !apperrors.IsType(err, apperrors.ErrorTypeRead) {
		t.Errorf("Expected read error, got %v", err)
	}
	snap := c.Snapshot()
	if snap.Phase != PhaseError || snap.Error != MessageReadFailure || snap.Reading != "" {
		t.Errorf("Expected read failure replacing the old reading, got %+v", snap)
	}
}
