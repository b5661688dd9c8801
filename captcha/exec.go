package captcha

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// ExecEngine shells out to a local speech synthesizer that writes WAV files,
// such as espeak-ng or the macOS say command. Intermediate files are removed
// on both success and failure paths.
type ExecEngine struct {
	Command string // synthesizer binary, e.g. "espeak-ng" or "say"
	Voice   string
	TempDir string // defaults to os.TempDir()
}

func (e *ExecEngine) tempPath(ext string) string {
	dir := e.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, uuid.NewString()+ext)
}

// Speak synthesizes text into a temporary WAV file and decodes it.
func (e *ExecEngine) Speak(ctx context.Context, text string) (PCM, error) {
	wavPath := e.tempPath(".wav")
	defer os.Remove(wavPath)

	cmd := exec.CommandContext(ctx, e.Command, e.args(wavPath, text)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return PCM{}, fmt.Errorf("%s: %w: %s", e.Command, err, bytes.TrimSpace(out))
	}

	raw, err := os.ReadFile(wavPath)
	if err != nil {
		return PCM{}, fmt.Errorf("read synthesized audio: %w", err)
	}
	return decodeWAV(raw)
}

func (e *ExecEngine) args(outPath, text string) []string {
	if filepath.Base(e.Command) == "say" {
		args := []string{"-o", outPath, "--data-format=LEI16@22050"}
		if e.Voice != "" {
			args = append(args, "-v", e.Voice)
		}
		return append(args, text)
	}
	// espeak style flags
	args := []string{"-w", outPath}
	if e.Voice != "" {
		args = append(args, "-v", e.Voice)
	}
	return append(args, text)
}

// FFmpegEncoder converts PCM to MP3 through an external ffmpeg binary.
type FFmpegEncoder struct {
	Path    string // ffmpeg binary, defaults to "ffmpeg"
	TempDir string
}

func (enc *FFmpegEncoder) binary() string {
	if enc.Path == "" {
		return "ffmpeg"
	}
	return enc.Path
}

func (enc *FFmpegEncoder) tempPath(ext string) string {
	dir := enc.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, uuid.NewString()+ext)
}

// Encode writes the samples to a temporary WAV file and transcodes it to MP3.
// Temporary files are removed whether or not the transcode succeeds.
func (enc *FFmpegEncoder) Encode(ctx context.Context, pcm PCM) ([]byte, error) {
	wavPath := enc.tempPath(".wav")
	mp3Path := enc.tempPath(".mp3")
	defer os.Remove(wavPath)
	defer os.Remove(mp3Path)

	if err := os.WriteFile(wavPath, encodeWAV(pcm), 0o600); err != nil {
		return nil, fmt.Errorf("write intermediate wav: %w", err)
	}

	cmd := exec.CommandContext(ctx, enc.binary(),
		"-y", "-loglevel", "error",
		"-i", wavPath,
		"-codec:a", "libmp3lame", "-qscale:a", "5",
		mp3Path,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(out))
	}

	return os.ReadFile(mp3Path)
}

// ContentType reports the MP3 media type.
func (enc *FFmpegEncoder) ContentType() string { return "audio/mpeg" }

// WAVEncoder emits plain WAV output. It is the fallback when no ffmpeg binary
// is available and the encoder used throughout the tests.
type WAVEncoder struct{}

// Encode serializes the samples without external tooling.
func (WAVEncoder) Encode(_ context.Context, pcm PCM) ([]byte, error) {
	return encodeWAV(pcm), nil
}

// ContentType reports the WAV media type.
func (WAVEncoder) ContentType() string { return "audio/wav" }
