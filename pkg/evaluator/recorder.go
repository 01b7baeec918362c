// pkg/evaluator/recorder.go
package evaluator

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"

	"go.uber.org/zap"

	"github.com/webgym/webgym/internal/config"
)

// GifRecorder assembles the screenshots captured during a run into an
// animated GIF. Recording is strictly best-effort: any failure logs and
// returns an empty string, never an error.
type GifRecorder struct {
	cfg    config.RecorderConfig
	logger *zap.Logger
}

func NewGifRecorder(cfg config.RecorderConfig, logger *zap.Logger) *GifRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GifRecorder{cfg: cfg, logger: logger}
}

// Render returns the base64-encoded GIF for the run, or "" when fewer than
// one screenshot decoded.
func (r *GifRecorder) Render(history []ActionExecutionResult) string {
	frames := r.collectFrames(history)
	if len(frames) == 0 {
		return ""
	}

	anim := &gif.GIF{LoopCount: r.cfg.LoopCount}
	for _, frame := range frames {
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, r.cfg.FrameDelay)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		r.logger.Warn("gif encoding failed", zap.Error(err))
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func (r *GifRecorder) collectFrames(history []ActionExecutionResult) []*image.Paletted {
	var frames []*image.Paletted
	for _, res := range history {
		if r.cfg.MaxFrames > 0 && len(frames) >= r.cfg.MaxFrames {
			break
		}
		shot := res.BrowserSnapshot.ScreenshotAfter
		if len(shot) == 0 {
			shot = res.BrowserSnapshot.ScreenshotBefore
		}
		if len(shot) == 0 {
			continue
		}
		frame, err := decodeFrame(shot)
		if err != nil {
			r.logger.Debug("skipping undecodable screenshot", zap.Error(err))
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}

func decodeFrame(data []byte) (*image.Paletted, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := src.Bounds()
	dst := image.NewPaletted(bounds, palette.Plan9)
	draw.FloydSteinberg.Draw(dst, bounds, src, bounds.Min)
	return dst, nil
}
