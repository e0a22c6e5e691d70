package track

import (
	"image"
	"image/color"
	"math"

	"github.com/ByteArena/box2d"
	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/mat"
)

const (
	// RenderScale is the number of pixels per metre in rendered frames
	RenderScale float64 = 8.0

	// Margins of grass drawn around the track, in metres
	MarginX float64 = 4.0
	MarginY float64 = 2.0
)

var (
	grassColour    = color.RGBA{R: 102, G: 204, B: 102, A: 255}
	trackColour    = color.RGBA{R: 102, G: 102, B: 102, A: 255}
	finishColour   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	obstacleColour = color.RGBA{R: 204, G: 51, B: 51, A: 255}
	carColour      = color.RGBA{R: 51, G: 77, B: 230, A: 255}
)

// frameSize returns the size in pixels of a rendering at scale
func frameSize(scale float64) (int, int) {
	w := int(math.Round((Length + 2*MarginX) * scale))
	h := int(math.Round((Width + 2*MarginY) * scale))
	return w, h
}

func pixelSize() (int, int) {
	return frameSize(PixelScale)
}

// worldToPixel converts world coordinates to pixel coordinates in a
// frame rendered at scale
func worldToPixel(x, y, scale float64) (float64, float64) {
	_, h := frameSize(scale)
	return (x + MarginX) * scale, float64(h) - (y+MarginY)*scale
}

// Render renders the current state of the track
func (t *Track) Render() (image.Image, error) {
	return t.draw(RenderScale), nil
}

func (t *Track) draw(scale float64) image.Image {
	w, h := frameSize(scale)
	dc := gg.NewContext(w, h)
	dc.SetColor(grassColour)
	dc.Clear()

	// Track surface
	x0, y0 := worldToPixel(0, Width, scale)
	dc.DrawRectangle(x0, y0, Length*scale, Width*scale)
	dc.SetColor(trackColour)
	dc.Fill()

	// Finish line
	fx1, fy1 := worldToPixel(Length, 0, scale)
	fx2, fy2 := worldToPixel(Length, Width, scale)
	dc.SetLineWidth(math.Max(1, scale/2))
	dc.SetColor(finishColour)
	dc.DrawLine(fx1, fy1, fx2, fy2)
	dc.Stroke()

	dc.SetColor(obstacleColour)
	for _, o := range t.obstacles {
		cx, cy := worldToPixel(o.centre.X, o.centre.Y, scale)
		dc.DrawCircle(cx, cy, o.radius*scale)
		dc.Fill()
	}

	// Vehicle
	dc.ClearPath()
	for fix := t.car.GetFixtureList(); fix != nil; fix = fix.M_next {
		shape, ok := fix.M_shape.(*box2d.B2PolygonShape)
		if !ok {
			continue
		}
		for i := 0; i < shape.M_count; i++ {
			v := box2d.B2TransformVec2Mul(t.car.M_xf, shape.M_vertices[i])
			px, py := worldToPixel(v.X, v.Y, scale)
			dc.LineTo(px, py)
		}
		dc.ClosePath()
	}
	dc.SetColor(carColour)
	dc.Fill()

	return dc.Image()
}

// pixels returns a grayscale rendering of the track, with intensities
// in [0, 1], as a flat observation vector in row major order
func (t *Track) pixels() *mat.VecDense {
	img := t.draw(PixelScale)
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	obs := mat.NewVecDense(w*h, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray := color.GrayModel.Convert(img.At(bounds.Min.X+x,
				bounds.Min.Y+y)).(color.Gray)
			obs.SetVec(y*w+x, float64(gray.Y)/255.0)
		}
	}
	return obs
}
