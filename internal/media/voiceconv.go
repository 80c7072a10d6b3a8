// Package media implements the voice, avatar, and sticker conversions
// (H)'s and (I)'s translation paths need: WeChat SILK <-> Telegram
// OGG/Opus, avatar normalization, and sticker format conversion.
package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// pcmSampleRate is spec.md §4.8's "transcode to PCM (44.1 kHz, s16le,
// mono)" requirement — the WeChat-side leg, distinct from the teacher's
// own 24kHz Matrix-side convention.
const pcmSampleRate = 44100

// VoiceConverter shells out to ffmpeg for the OGG/Opus<->PCM legs and to
// the silk_v3_encoder/silk_v3_decoder binaries for the PCM<->SILK leg,
// grounded directly on the teacher's internal/provider/ipad/voiceconv.go:
// same graceful-degradation contract (a missing ffmpeg fails at
// construction; a missing silk binary fails only the conversion that needs
// it) and the same "#!SILK_V3" header convention,
// retargeted from the teacher's 24kHz Matrix profile to spec's 44.1kHz one.
type VoiceConverter struct {
	ffmpegPath      string
	silkDecoderPath string
	silkEncoderPath string
	tempDir         string
}

// NewVoiceConverter locates ffmpeg (required) and the silk binaries
// (required for full bidirectional conversion; a decoder-only install can
// still serve WeChat->Telegram).
func NewVoiceConverter(tempDir string) (*VoiceConverter, error) {
	vc := &VoiceConverter{tempDir: tempDir}
	if vc.tempDir == "" {
		vc.tempDir = os.TempDir()
	}

	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	vc.ffmpegPath = path

	if path, err := exec.LookPath("silk_v3_decoder"); err == nil {
		vc.silkDecoderPath = path
	}
	if path, err := exec.LookPath("silk_v3_encoder"); err == nil {
		vc.silkEncoderPath = path
	}
	return vc, nil
}

// SILKToOGG converts a WeChat SILK voice message to OGG/Opus for Telegram's
// sendVoice. durationMs is not used by the conversion.
func (vc *VoiceConverter) SILKToOGG(ctx context.Context, silk []byte, durationMs int) ([]byte, error) {
	raw := stripSilkHeader(silk)
	if vc.silkDecoderPath == "" {
		return nil, fmt.Errorf("silk_v3_decoder not available")
	}

	silkFile, err := writeTempFile(vc.tempDir, "silk_*.silk", raw)
	if err != nil {
		return nil, fmt.Errorf("write temp silk: %w", err)
	}
	defer os.Remove(silkFile)

	pcmFile := strings.TrimSuffix(silkFile, filepath.Ext(silkFile)) + ".pcm"
	defer os.Remove(pcmFile)

	cmd := exec.CommandContext(ctx, vc.silkDecoderPath, silkFile, pcmFile, "-Fs_API", strconv.Itoa(pcmSampleRate))
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("silk decode: %w, output: %s", err, string(output))
	}

	pcm, err := os.ReadFile(pcmFile)
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}

	return vc.ffmpegConvert(ctx, pcm, []string{
		"-f", "s16le", "-ar", strconv.Itoa(pcmSampleRate), "-ac", "1",
	}, []string{
		"-c:a", "libopus", "-b:a", "48k", "-f", "ogg",
	})
}

// OGGToSILK converts a Telegram OGG/Opus voice note to WeChat SILK,
// returning its duration in milliseconds alongside the encoded payload.
func (vc *VoiceConverter) OGGToSILK(ctx context.Context, ogg []byte) ([]byte, int, error) {
	if vc.silkEncoderPath == "" {
		return nil, 0, fmt.Errorf("silk_v3_encoder not available")
	}

	pcm, err := vc.ffmpegConvert(ctx, ogg, []string{"-f", "ogg"}, []string{
		"-f", "s16le", "-ar", strconv.Itoa(pcmSampleRate), "-ac", "1", "-acodec", "pcm_s16le",
	})
	if err != nil {
		return nil, 0, fmt.Errorf("ogg to pcm: %w", err)
	}

	pcmFile, err := writeTempFile(vc.tempDir, "pcm_*.raw", pcm)
	if err != nil {
		return nil, 0, fmt.Errorf("write temp pcm: %w", err)
	}
	defer os.Remove(pcmFile)

	silkFile := strings.TrimSuffix(pcmFile, filepath.Ext(pcmFile)) + ".silk"
	defer os.Remove(silkFile)

	cmd := exec.CommandContext(ctx, vc.silkEncoderPath, pcmFile, silkFile,
		"-Fs_API", strconv.Itoa(pcmSampleRate), "-rate", strconv.Itoa(pcmSampleRate), "-tencent")
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, 0, fmt.Errorf("silk encode: %w, output: %s", err, string(output))
	}

	silk, err := os.ReadFile(silkFile)
	if err != nil {
		return nil, 0, fmt.Errorf("read silk output: %w", err)
	}

	durationMs := (len(pcm) / 2) * 1000 / pcmSampleRate // 16-bit mono samples
	return addSilkHeader(silk), durationMs, nil
}

// IsAvailable reports whether at least the decode (WeChat->Telegram) leg
// can run.
func (vc *VoiceConverter) IsAvailable() bool { return vc.ffmpegPath != "" && vc.silkDecoderPath != "" }

func (vc *VoiceConverter) ffmpegConvert(ctx context.Context, input []byte, inputArgs, outputArgs []string) ([]byte, error) {
	args := make([]string, 0, len(inputArgs)+len(outputArgs)+6)
	args = append(args, "-y", "-hide_banner", "-loglevel", "error")
	args = append(args, inputArgs...)
	args = append(args, "-i", "pipe:0")
	args = append(args, outputArgs...)
	args = append(args, "pipe:1")

	cmd := exec.CommandContext(ctx, vc.ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w, stderr: %s", err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func stripSilkHeader(data []byte) []byte {
	for _, header := range [][]byte{[]byte("#!SILK_V3\n"), []byte("#!SILK_V3")} {
		if bytes.HasPrefix(data, header) {
			return data[len(header):]
		}
	}
	return data
}

func addSilkHeader(data []byte) []byte {
	return append([]byte("#!SILK_V3\n"), data...)
}

func writeTempFile(dir, pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	path := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
