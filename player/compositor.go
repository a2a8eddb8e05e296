package player

import (
	"image"
	"image/draw"

	"github.com/njyeung/lipsync/timeline"
)

// FrameSource exposes the most recent decoded frame of a video track
type FrameSource interface {
	CurrentFrame() *Frame
}

// Layer pairs a video track with its frame source. Later layers are drawn
// on top of earlier ones.
type Layer struct {
	Track  timeline.Track
	Source FrameSource
}

// RenderFrame clears canvas to black and draws the topmost video layer
// active at t, letterboxed. It returns the frame drawn, or nil if the
// canvas was left black.
func RenderFrame(canvas *image.RGBA, t float64, layers []Layer) *Frame {
	draw.Draw(canvas, canvas.Bounds(), image.Black, image.Point{}, draw.Src)

	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		if l.Source == nil || !timeline.Active(l.Track, t) {
			continue
		}
		frame := l.Source.CurrentFrame()
		if frame == nil || frame.Width <= 0 || frame.Height <= 0 || len(frame.RGB) < frame.Width*frame.Height*3 {
			// nothing decoded yet, the window stays black
			return nil
		}

		cb := canvas.Bounds()
		dst := Letterbox(frame.Width, frame.Height, cb.Dx(), cb.Dy()).Add(cb.Min)
		drawScaled(canvas, dst, frame)
		return frame
	}
	return nil
}

// Letterbox computes the aspect-correct rectangle for a srcW x srcH frame
// centered inside a dstW x dstH canvas. Bars go top/bottom when the frame
// is wider than the canvas, left/right otherwise.
func Letterbox(srcW, srcH, dstW, dstH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rectangle{}
	}

	// srcW/srcH > dstW/dstH without floating point
	if srcW*dstH > dstW*srcH {
		h := max(dstW*srcH/srcW, 1)
		y := (dstH - h) / 2
		return image.Rect(0, y, dstW, y+h)
	}

	w := max(dstH*srcW/srcH, 1)
	x := (dstW - w) / 2
	return image.Rect(x, 0, x+w, dstH)
}

// drawScaled draws an RGB24 frame into dst using bilinear sampling
func drawScaled(canvas *image.RGBA, dst image.Rectangle, f *Frame) {
	dst = dst.Intersect(canvas.Bounds())
	dstW, dstH := dst.Dx(), dst.Dy()
	if dstW == 0 || dstH == 0 {
		return
	}
	srcW, srcH := f.Width, f.Height

	at := func(x, y int) (float64, float64, float64) {
		i := (y*srcW + x) * 3
		return float64(f.RGB[i]), float64(f.RGB[i+1]), float64(f.RGB[i+2])
	}

	for dy := 0; dy < dstH; dy++ {
		srcYf := (float64(dy)+0.5)*float64(srcH)/float64(dstH) - 0.5
		y0 := int(srcYf)
		y1 := y0 + 1
		if y0 < 0 {
			y0 = 0
		}
		if y1 >= srcH {
			y1 = srcH - 1
		}
		yFrac := srcYf - float64(y0)
		if yFrac < 0 {
			yFrac = 0
		}

		row := canvas.PixOffset(dst.Min.X, dst.Min.Y+dy)
		for dx := 0; dx < dstW; dx++ {
			srcXf := (float64(dx)+0.5)*float64(srcW)/float64(dstW) - 0.5
			x0 := int(srcXf)
			x1 := x0 + 1
			if x0 < 0 {
				x0 = 0
			}
			if x1 >= srcW {
				x1 = srcW - 1
			}
			xFrac := srcXf - float64(x0)
			if xFrac < 0 {
				xFrac = 0
			}

			r00, g00, b00 := at(x0, y0)
			r10, g10, b10 := at(x1, y0)
			r01, g01, b01 := at(x0, y1)
			r11, g11, b11 := at(x1, y1)

			w00 := (1 - xFrac) * (1 - yFrac)
			w10 := xFrac * (1 - yFrac)
			w01 := (1 - xFrac) * yFrac
			w11 := xFrac * yFrac

			i := row + dx*4
			canvas.Pix[i] = uint8(w00*r00 + w10*r10 + w01*r01 + w11*r11 + 0.5)
			canvas.Pix[i+1] = uint8(w00*g00 + w10*g10 + w01*g01 + w11*g11 + 0.5)
			canvas.Pix[i+2] = uint8(w00*b00 + w10*b10 + w01*b01 + w11*b11 + 0.5)
			canvas.Pix[i+3] = 255
		}
	}
}
