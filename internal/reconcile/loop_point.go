package reconcile

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"math"
	"os"
	"path/filepath"

	"github.com/nfnt/resize"
)

// thumbEdge is the comparison resolution for the loop-point heuristic.
// Frames are shrunk before comparison so the metric reflects composition,
// not pixel noise.
const thumbEdge = 32

// detectSeamlessLoop checks whether a clip's last frame resembles its first,
// meaning a stream-loop join will read as continuous motion. Best effort: a
// failed extraction or decode simply reports a hard join. Duration math never
// depends on this answer.
func (r *Reconciler) detectSeamlessLoop(ctx context.Context, path string, index int) bool {
	head := filepath.Join(r.scratchDir, fmt.Sprintf("loop_head_%03d.jpg", index))
	tail := filepath.Join(r.scratchDir, fmt.Sprintf("loop_tail_%03d.jpg", index))
	defer os.Remove(head)
	defer os.Remove(tail)

	if err := r.ops.ExtractFrame(ctx, path, 0, head); err != nil {
		r.logger.Debug().Err(err).Int("clip", index).Msg("loop-point head extraction failed")
		return false
	}
	if err := r.ops.ExtractLastFrame(ctx, path, tail); err != nil {
		r.logger.Debug().Err(err).Int("clip", index).Msg("loop-point tail extraction failed")
		return false
	}

	headImg, err := loadImage(head)
	if err != nil {
		return false
	}
	tailImg, err := loadImage(tail)
	if err != nil {
		return false
	}

	dist := FrameDistance(headImg, tailImg)
	r.logger.Debug().
		Int("clip", index).
		Float64("distance", dist).
		Float64("threshold", r.similarity).
		Msg("loop-point similarity")

	return dist <= r.similarity
}

// FrameDistance returns the mean absolute RGB difference between two frames,
// normalized to [0, 1]. Both frames are downscaled to a fixed thumbnail
// size before comparison.
func FrameDistance(a, b image.Image) float64 {
	at := resize.Resize(thumbEdge, thumbEdge, a, resize.Bilinear)
	bt := resize.Resize(thumbEdge, thumbEdge, b, resize.Bilinear)

	var sum float64
	bounds := at.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			ar, ag, ab, _ := at.At(x, y).RGBA()
			br, bg, bb, _ := bt.At(x, y).RGBA()
			sum += math.Abs(float64(ar>>8) - float64(br>>8))
			sum += math.Abs(float64(ag>>8) - float64(bg>>8))
			sum += math.Abs(float64(ab>>8) - float64(bb>>8))
		}
	}

	pixels := float64(bounds.Dx() * bounds.Dy() * 3)
	return sum / pixels / 255.0
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	return img, nil
}
