package telegram

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"
)

// DefaultImagePrompt asks for a short caption of an image.
const DefaultImagePrompt = "Describe this image in one or two sentences."

// MediaDecoder turns inbound media into text. Both methods are best-effort
// and return "" when nothing could be decoded.
type MediaDecoder interface {
	DescribeImage(ctx context.Context, fileID string) string
	TranscribeAudio(ctx context.Context, fileID string) string
}

// FileSource downloads Bot API files by file_id.
type FileSource interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
}

// Vision captions an image.
type Vision interface {
	Describe(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Decoder is the MediaDecoder backed by a vision model and a transcription
// endpoint. A nil Vision or Transcriber disables that half.
type Decoder struct {
	files       FileSource
	vision      Vision
	transcriber Transcriber
	prompt      string
	timeout     time.Duration
	logger      *slog.Logger
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithImagePrompt sets the instruction sent alongside each image.
func WithImagePrompt(p string) DecoderOption {
	return func(d *Decoder) {
		if p != "" {
			d.prompt = p
		}
	}
}

// WithDecodeTimeout bounds each download and model call.
func WithDecodeTimeout(t time.Duration) DecoderOption {
	return func(d *Decoder) { d.timeout = t }
}

// WithDecoderLogger sets the logger.
func WithDecoderLogger(l *slog.Logger) DecoderOption {
	return func(d *Decoder) { d.logger = l }
}

// NewDecoder creates a Decoder.
func NewDecoder(files FileSource, vision Vision, transcriber Transcriber, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		files:       files,
		vision:      vision,
		transcriber: transcriber,
		prompt:      DefaultImagePrompt,
		timeout:     30 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DescribeImage captions a still image. Formats the vision model cannot
// read, such as animated stickers, yield "".
func (d *Decoder) DescribeImage(ctx context.Context, fileID string) string {
	if d.vision == nil || fileID == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	data, filePath, err := d.files.DownloadFile(ctx, fileID)
	if err != nil {
		d.logger.Warn("download image", "file_id", fileID, "error", err)
		return ""
	}
	mimeType, ok := imageType(filePath)
	if !ok {
		d.logger.Debug("image format not supported", "file_path", filePath)
		return ""
	}
	text, err := d.vision.Describe(ctx, data, mimeType, d.prompt)
	if err != nil {
		d.logger.Warn("describe image", "file_id", fileID, "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

// TranscribeAudio transcribes a voice message.
func (d *Decoder) TranscribeAudio(ctx context.Context, fileID string) string {
	if d.transcriber == nil || fileID == "" {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	data, filePath, err := d.files.DownloadFile(ctx, fileID)
	if err != nil {
		d.logger.Warn("download audio", "file_id", fileID, "error", err)
		return ""
	}
	text, err := d.transcriber.Transcribe(ctx, data, audioName(filePath))
	if err != nil {
		d.logger.Warn("transcribe audio", "file_id", fileID, "error", err)
		return ""
	}
	return strings.TrimSpace(text)
}

func imageType(filePath string) (string, bool) {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".jpg", ".jpeg":
		return "image/jpeg", true
	case ".png":
		return "image/png", true
	case ".webp":
		return "image/webp", true
	case ".gif":
		return "image/gif", true
	}
	return "", false
}

// audioName is the upload filename for a voice file. Voice notes arrive as
// .oga, which transcription endpoints only accept under .ogg.
func audioName(filePath string) string {
	name := path.Base(filePath)
	if ext := path.Ext(name); strings.EqualFold(ext, ".oga") || ext == "" {
		name = strings.TrimSuffix(name, ext) + ".ogg"
	}
	return name
}
