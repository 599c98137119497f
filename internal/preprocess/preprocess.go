// Package preprocess conditions rasterized page images before
// recognition. Every stage is a quality heuristic: a stage that cannot
// improve the image hands back its input, and Preprocess as a whole
// never fails the pipeline.
package preprocess

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

const (
	// binarizeWindow is the side of the local-mean neighbourhood. Scan
	// illumination is uneven, so a single global threshold smears whole
	// regions to black or white.
	binarizeWindow = 15

	// binarizeBias scales the local mean into a threshold. Below 1.0 so
	// faint shadows around glyphs stay background.
	binarizeBias = 0.875

	// maxSkewDegrees bounds deskew correction. Larger estimates are
	// almost always a mis-read of layout, not real page tilt.
	maxSkewDegrees = 15.0

	// minSkewDegrees below which rotation costs more blur than it fixes.
	minSkewDegrees = 0.4
)

// Preprocess runs denoise, adaptive binarization, speckle removal and
// deskew, in that order. Any internal panic falls back to the input.
func Preprocess(img image.Image) (out image.Image) {
	if img == nil {
		return img
	}
	out = img
	defer func() {
		if recover() != nil {
			out = img
		}
	}()

	g := toGray(img)
	g = medianDenoise(g)
	b := binarize(g)
	b = open(b)
	return deskew(b)
}

// DownscaleIfNeeded shrinks an image whose largest dimension exceeds
// maxDim, preserving aspect ratio. Returns the input unchanged when it
// already fits.
func DownscaleIfNeeded(img image.Image, maxDim int) image.Image {
	if img == nil || maxDim <= 0 {
		return img
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxDim {
		return img
	}
	scale := float64(maxDim) / float64(longest)
	dst := image.NewGray(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, bounds, draw.Src, nil)
	return dst
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	g := image.NewGray(bounds)
	draw.Draw(g, bounds, img, bounds.Min, draw.Src)
	return g
}

// medianDenoise applies a 3x3 median filter. The median keeps glyph
// edges where a box blur would soften them.
func medianDenoise(g *image.Gray) *image.Gray {
	bounds := g.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return g
	}
	out := image.NewGray(bounds)
	var win [9]uint8
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, g.GrayAt(bounds.Min.X+x, bounds.Min.Y+y))
				continue
			}
			n := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					win[n] = g.GrayAt(bounds.Min.X+x+dx, bounds.Min.Y+y+dy).Y
					n++
				}
			}
			out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: median9(win)})
		}
	}
	return out
}

func median9(v [9]uint8) uint8 {
	// insertion sort; 9 elements, called per pixel
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
	return v[4]
}

// binarize thresholds each pixel against the mean of its local window,
// computed over an integral image so the window size is free.
func binarize(g *image.Gray) *image.Gray {
	bounds := g.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return g
	}

	// integral[y][x] = sum of pixels above and left, 1-based
	integral := make([][]uint64, h+1)
	integral[0] = make([]uint64, w+1)
	for y := 1; y <= h; y++ {
		integral[y] = make([]uint64, w+1)
		var rowSum uint64
		for x := 1; x <= w; x++ {
			rowSum += uint64(g.GrayAt(bounds.Min.X+x-1, bounds.Min.Y+y-1).Y)
			integral[y][x] = integral[y-1][x] + rowSum
		}
	}

	half := binarizeWindow / 2
	out := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := x-half, y-half
			x1, y1 := x+half+1, y+half+1
			if x0 < 0 {
				x0 = 0
			}
			if y0 < 0 {
				y0 = 0
			}
			if x1 > w {
				x1 = w
			}
			if y1 > h {
				y1 = h
			}
			area := uint64((x1 - x0) * (y1 - y0))
			sum := integral[y1][x1] - integral[y0][x1] - integral[y1][x0] + integral[y0][x0]
			mean := float64(sum) / float64(area)

			v := uint8(255)
			if float64(g.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y) < mean*binarizeBias {
				v = 0
			}
			out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: v})
		}
	}
	return out
}

// open is a morphological opening (erode then dilate) on the dark
// foreground. Removes the isolated speckles binarization introduces.
func open(b *image.Gray) *image.Gray {
	return dilate(erode(b))
}

func erode(b *image.Gray) *image.Gray { return morph(b, true) }

func dilate(b *image.Gray) *image.Gray { return morph(b, false) }

// morph applies a 3x3 structuring element. erode=true keeps a pixel
// dark only when its whole neighbourhood is dark; false darkens any
// pixel touching a dark one.
func morph(b *image.Gray, eroding bool) *image.Gray {
	bounds := b.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return b
	}
	out := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dark := eroding
			for dy := -1; dy <= 1 && dark == eroding; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					fg := b.GrayAt(bounds.Min.X+nx, bounds.Min.Y+ny).Y == 0
					if eroding && !fg {
						dark = false
						break
					}
					if !eroding && fg {
						dark = true
						break
					}
				}
			}
			v := uint8(255)
			if dark {
				v = 0
			}
			out.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: v})
		}
	}
	return out
}

// deskew estimates the dominant rotation of the binarized foreground
// from its second-order moments and rotates to correct it.
func deskew(b *image.Gray) image.Image {
	angle := estimateSkew(b)
	if math.Abs(angle) < minSkewDegrees || math.Abs(angle) > maxSkewDegrees {
		return b
	}
	return rotate(b, -angle)
}

// estimateSkew returns the tilt of the foreground's principal axis in
// degrees. Text blocks are wide and flat, so the principal axis tracks
// the baseline direction.
func estimateSkew(b *image.Gray) float64 {
	bounds := b.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	var n, sx, sy float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if b.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y == 0 {
				n++
				sx += float64(x)
				sy += float64(y)
			}
		}
	}
	if n < 64 {
		return 0 // not enough ink to trust an estimate
	}
	cx, cy := sx/n, sy/n

	var mxx, myy, mxy float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if b.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y == 0 {
				dx, dy := float64(x)-cx, float64(y)-cy
				mxx += dx * dx
				myy += dy * dy
				mxy += dx * dy
			}
		}
	}
	if mxx == myy && mxy == 0 {
		return 0
	}
	return math.Atan2(2*mxy, mxx-myy) / 2 * 180 / math.Pi
}

// rotate spins the image about its center, filling the uncovered
// corners with background white.
func rotate(b *image.Gray, degrees float64) image.Image {
	bounds := b.Bounds()
	out := image.NewGray(bounds)
	draw.Draw(out, bounds, image.NewUniform(color.Gray{Y: 255}), image.Point{}, draw.Src)

	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	cx := float64(bounds.Min.X) + float64(bounds.Dx())/2
	cy := float64(bounds.Min.Y) + float64(bounds.Dy())/2

	// rotation about (cx, cy): translate, rotate, translate back
	m := f64.Aff3{
		cos, -sin, cx - cos*cx + sin*cy,
		sin, cos, cy - sin*cx - cos*cy,
	}
	draw.BiLinear.Transform(out, m, b, bounds, draw.Src, nil)
	return out
}
