package reconcile

import (
	"image"
	"image/color"
	"testing"
)

func solidImage(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFrameDistanceIdentical(t *testing.T) {
	a := solidImage(color.RGBA{R: 120, G: 80, B: 200, A: 255})
	if d := FrameDistance(a, a); d != 0 {
		t.Errorf("identical frames should have distance 0, got %v", d)
	}
}

func TestFrameDistanceOpposite(t *testing.T) {
	black := solidImage(color.RGBA{A: 255})
	white := solidImage(color.RGBA{R: 255, G: 255, B: 255, A: 255})

	d := FrameDistance(black, white)
	if d < 0.95 {
		t.Errorf("black vs white should be near 1.0, got %v", d)
	}
}

func TestFrameDistanceNearby(t *testing.T) {
	a := solidImage(color.RGBA{R: 100, G: 100, B: 100, A: 255})
	b := solidImage(color.RGBA{R: 110, G: 110, B: 110, A: 255})

	d := FrameDistance(a, b)
	if d <= 0 || d > 0.1 {
		t.Errorf("slightly shifted frames should score small but nonzero, got %v", d)
	}
}

func TestFrameDistanceMixedSizes(t *testing.T) {
	// comparison happens at thumbnail scale, so source sizes may differ
	small := image.NewRGBA(image.Rect(0, 0, 16, 16))
	large := image.NewRGBA(image.Rect(0, 0, 128, 128))

	if d := FrameDistance(small, large); d != 0 {
		t.Errorf("two blank frames should match, got %v", d)
	}
}
