package reading

import (
	"io"
	"time"

	apperrors "github.com/anime-shed/palm-oracle-go/internal/errors"
	"github.com/anime-shed/palm-oracle-go/internal/imagedata"
)

// Phase is the observable state of a Controller. It is derived from the
// stored fields, never stored itself.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseResult  Phase = "result"
	PhaseError   Phase = "error"
)

// Messages shown to the user. The cause of a failure only reaches the logs.
const (
	MessageInvalidType    = "请上传有效的图片文件。"
	MessageReadFailure    = "读取图片文件失败。"
	MessageServiceFailure = "神秘连接中断。请重试。"
	FallbackReading       = "灵界保持沉默。请重试。"
)

// File is a user-selected upload: a declared media type and its content
type File struct {
	Name      string
	MediaType string
	Content   io.Reader
}

// Image is an uploaded picture held as a data URL for the life of a session
type Image struct {
	DataURL   string             `json:"data_url"`
	MediaType string             `json:"media_type"`
	Name      string             `json:"name,omitempty"`
	Metadata  imagedata.Metadata `json:"metadata"`
}

// Snapshot is a read-only copy of controller state
type Snapshot struct {
	Phase     Phase               `json:"phase"`
	Image     *Image              `json:"image,omitempty"`
	Reading   string              `json:"reading,omitempty"`
	Error     string              `json:"error,omitempty"`
	ErrorKind apperrors.ErrorType `json:"error_kind,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// state holds the three user-visible fields plus the in-flight flag
type state struct {
	image     *Image
	reading   string
	errMsg    string
	errKind   apperrors.ErrorType
	loading   bool
	updatedAt time.Time
}

func (s *state) phase() Phase {
	switch {
	case s.loading:
		return PhaseLoading
	case s.reading != "":
		return PhaseResult
	case s.errMsg != "":
		return PhaseError
	default:
		return PhaseIdle
	}
}

func (s *state) snapshot() Snapshot {
	snap := Snapshot{
		Phase:     s.phase(),
		Reading:   s.reading,
		Error:     s.errMsg,
		ErrorKind: s.errKind,
		UpdatedAt: s.updatedAt,
	}
	if s.image != nil {
		img := *s.image
		snap.Image = &img
	}
	return snap
}

// fail replaces everything with a single error message
func (s *state) fail(image *Image, msg string, kind apperrors.ErrorType) {
	s.image = image
	s.reading = ""
	s.errMsg = msg
	s.errKind = kind
}

func (s *state) clear() {
	s.image = nil
	s.reading = ""
	s.errMsg = ""
	s.errKind = ""
}
