package telegram

import (
	"context"
	"errors"
	"testing"
)

type fakeFiles struct {
	paths map[string]string
	err   error
}

func (f *fakeFiles) DownloadFile(_ context.Context, fileID string) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return []byte("data-" + fileID), f.paths[fileID], nil
}

type fakeVision struct {
	mimeType string
	prompt   string
	text     string
	err      error
}

func (v *fakeVision) Describe(_ context.Context, image []byte, mimeType, prompt string) (string, error) {
	v.mimeType, v.prompt = mimeType, prompt
	return v.text, v.err
}

type fakeTranscriber struct {
	filename string
	text     string
	err      error
}

func (tr *fakeTranscriber) Transcribe(_ context.Context, audio []byte, filename string) (string, error) {
	tr.filename = filename
	return tr.text, tr.err
}

func TestDecoderDescribeImage(t *testing.T) {
	files := &fakeFiles{paths: map[string]string{"p": "photos/file_3.JPG", "s": "stickers/file_9.tgs"}}
	vision := &fakeVision{text: "  a red bicycle\n"}
	d := NewDecoder(files, vision, nil, WithImagePrompt("caption this"))

	if got := d.DescribeImage(context.Background(), "p"); got != "a red bicycle" {
		t.Errorf("expected trimmed description, got %q", got)
	}
	if vision.mimeType != "image/jpeg" || vision.prompt != "caption this" {
		t.Errorf("unexpected vision call: %q %q", vision.mimeType, vision.prompt)
	}

	vision.mimeType = ""
	if got := d.DescribeImage(context.Background(), "s"); got != "" {
		t.Errorf("expected no description for an animated sticker, got %q", got)
	}
	if vision.mimeType != "" {
		t.Error("unsupported formats must not reach the vision model")
	}
}

func TestDecoderFailuresYieldEmpty(t *testing.T) {
	ctx := context.Background()

	d := NewDecoder(&fakeFiles{err: errors.New("gone")}, &fakeVision{text: "x"}, &fakeTranscriber{text: "y"})
	if got := d.DescribeImage(ctx, "p"); got != "" {
		t.Errorf("expected empty on download failure, got %q", got)
	}
	if got := d.TranscribeAudio(ctx, "v"); got != "" {
		t.Errorf("expected empty on download failure, got %q", got)
	}

	files := &fakeFiles{paths: map[string]string{"p": "a.png", "v": "voice/a.oga"}}
	d = NewDecoder(files, &fakeVision{err: errors.New("rate limited")}, &fakeTranscriber{err: errors.New("rate limited")})
	if got := d.DescribeImage(ctx, "p"); got != "" {
		t.Errorf("expected empty on model failure, got %q", got)
	}
	if got := d.TranscribeAudio(ctx, "v"); got != "" {
		t.Errorf("expected empty on model failure, got %q", got)
	}
}

func TestDecoderDisabledHalves(t *testing.T) {
	d := NewDecoder(&fakeFiles{}, nil, nil)
	if d.DescribeImage(context.Background(), "p") != "" || d.TranscribeAudio(context.Background(), "v") != "" {
		t.Error("expected nothing decoded without models")
	}
	if d.DescribeImage(context.Background(), "") != "" {
		t.Error("expected nothing decoded for an empty file id")
	}
}

func TestDecoderTranscribeAudio(t *testing.T) {
	tr := &fakeTranscriber{text: "call me back"}
	d := NewDecoder(&fakeFiles{paths: map[string]string{"v": "voice/file_12.oga"}}, nil, tr)
	if got := d.TranscribeAudio(context.Background(), "v"); got != "call me back" {
		t.Errorf("expected transcript, got %q", got)
	}
	if tr.filename != "file_12.ogg" {
		t.Errorf("expected .oga renamed to .ogg, got %q", tr.filename)
	}
}

func TestAudioName(t *testing.T) {
	tests := map[string]string{
		"voice/file_1.oga": "file_1.ogg",
		"voice/file_2.OGA": "file_2.ogg",
		"music/song.mp3":   "song.mp3",
		"voice/raw":        "raw.ogg",
	}
	for in, want := range tests {
		if got := audioName(in); got != want {
			t.Errorf("audioName(%q) = %q, want %q", in, got, want)
		}
	}
}
