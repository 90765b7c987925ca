package enhance

import (
	"image"
	"image/color"
	stddraw "image/draw"
	"math"

	xdraw "golang.org/x/image/draw"
)

// resizeToWidth scales img so its width equals target, preserving aspect
// ratio, with Catmull-Rom interpolation. Passes through untouched when
// target is unset or already matched.
func resizeToWidth(img image.Image, target int) image.Image {
	b := img.Bounds()
	if target <= 0 || b.Dx() == target || b.Dx() == 0 || b.Dy() == 0 {
		return img
	}
	height := int(math.Round(float64(b.Dy()) * float64(target) / float64(b.Dx())))
	if height < 1 {
		height = 1
	}

	rect := image.Rect(0, 0, target, height)
	if _, ok := img.(*image.Gray); ok {
		dst := image.NewGray(rect)
		xdraw.CatmullRom.Scale(dst, rect, img, b, xdraw.Src, nil)
		return dst
	}
	dst := image.NewRGBA(rect)
	xdraw.CatmullRom.Scale(dst, rect, img, b, xdraw.Src, nil)
	return dst
}

// grayscale converts to single-channel luminance. Already-gray images
// pass through untouched.
func grayscale(img image.Image) image.Image {
	if _, ok := img.(*image.Gray); ok {
		return img
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(dst, dst.Bounds(), img, b.Min, stddraw.Src)
	return dst
}

// toRGBA returns img as *image.RGBA, converting if necessary. The input
// is never modified.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	stddraw.Draw(dst, dst.Bounds(), img, b.Min, stddraw.Src)
	return dst
}

func clampU8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v + 0.5)
}

// luminance of an RGBA pixel, matching the stdlib gray conversion.
func luminance(r, g, b uint8) float64 {
	return (299*float64(r) + 587*float64(g) + 114*float64(b)) / 1000
}

// Bilateral filter parameters: a 5x5 window with fixed spatial and
// range sigmas tuned for scanned line art.
const (
	bilateralRadius     = 2
	bilateralSigmaSpace = 2.0
	bilateralSigmaColor = 30.0
)

// bilateral applies edge-preserving smoothing: flat regions are
// averaged while strong luminance edges keep their weight near zero.
func bilateral(img image.Image) image.Image {
	spatial := make([][]float64, 2*bilateralRadius+1)
	for dy := -bilateralRadius; dy <= bilateralRadius; dy++ {
		row := make([]float64, 2*bilateralRadius+1)
		for dx := -bilateralRadius; dx <= bilateralRadius; dx++ {
			d2 := float64(dx*dx + dy*dy)
			row[dx+bilateralRadius] = math.Exp(-d2 / (2 * bilateralSigmaSpace * bilateralSigmaSpace))
		}
		spatial[dy+bilateralRadius] = row
	}
	rangeWeight := func(diff float64) float64 {
		return math.Exp(-(diff * diff) / (2 * bilateralSigmaColor * bilateralSigmaColor))
	}

	if g, ok := img.(*image.Gray); ok {
		b := g.Bounds()
		dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				center := float64(g.GrayAt(x, y).Y)
				var sum, wsum float64
				for dy := -bilateralRadius; dy <= bilateralRadius; dy++ {
					for dx := -bilateralRadius; dx <= bilateralRadius; dx++ {
						nx, ny := x+dx, y+dy
						if nx < b.Min.X || ny < b.Min.Y || nx >= b.Max.X || ny >= b.Max.Y {
							continue
						}
						v := float64(g.GrayAt(nx, ny).Y)
						w := spatial[dy+bilateralRadius][dx+bilateralRadius] * rangeWeight(v-center)
						sum += w * v
						wsum += w
					}
				}
				dst.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: clampU8(sum / wsum)})
			}
		}
		return dst
	}

	src := toRGBA(img)
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBAAt(x, y)
			center := luminance(c.R, c.G, c.B)
			var sumR, sumG, sumB, wsum float64
			for dy := -bilateralRadius; dy <= bilateralRadius; dy++ {
				for dx := -bilateralRadius; dx <= bilateralRadius; dx++ {
					nx, ny := x+dx, y+dy
					if nx < b.Min.X || ny < b.Min.Y || nx >= b.Max.X || ny >= b.Max.Y {
						continue
					}
					n := src.RGBAAt(nx, ny)
					w := spatial[dy+bilateralRadius][dx+bilateralRadius] * rangeWeight(luminance(n.R, n.G, n.B)-center)
					sumR += w * float64(n.R)
					sumG += w * float64(n.G)
					sumB += w * float64(n.B)
					wsum += w
				}
			}
			dst.SetRGBA(x, y, color.RGBA{
				R: clampU8(sumR / wsum),
				G: clampU8(sumG / wsum),
				B: clampU8(sumB / wsum),
				A: c.A,
			})
		}
	}
	return dst
}

// autoContrast stretches each channel's histogram to the full 0-255
// range. Images already spanning the range pass through untouched.
func autoContrast(img image.Image) image.Image {
	if g, ok := img.(*image.Gray); ok {
		lo, hi := uint8(255), uint8(0)
		for _, v := range g.Pix {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if lo == 0 && hi == 255 || lo >= hi {
			return img
		}
		b := g.Bounds()
		dst := image.NewGray(b)
		scale := 255.0 / float64(hi-lo)
		for i, v := range g.Pix {
			dst.Pix[i] = clampU8(float64(int(v)-int(lo)) * scale)
		}
		return dst
	}

	src := toRGBA(img)
	var lo, hi [3]int
	for ch := range lo {
		lo[ch], hi[ch] = 255, 0
	}
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBAAt(x, y)
			for ch, v := range [3]uint8{c.R, c.G, c.B} {
				if int(v) < lo[ch] {
					lo[ch] = int(v)
				}
				if int(v) > hi[ch] {
					hi[ch] = int(v)
				}
			}
		}
	}
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBAAt(x, y)
			out := [3]uint8{c.R, c.G, c.B}
			for ch := range out {
				if hi[ch] > lo[ch] {
					out[ch] = clampU8(float64(int(out[ch])-lo[ch]) * 255.0 / float64(hi[ch]-lo[ch]))
				}
			}
			dst.SetRGBA(x, y, color.RGBA{R: out[0], G: out[1], B: out[2], A: c.A})
		}
	}
	return dst
}

// contrast scales pixel distance from the image's mean luminance by
// factor. Identity at factor 1.0 (skipped by the pipeline).
func contrast(img image.Image, factor float64) image.Image {
	if g, ok := img.(*image.Gray); ok {
		var total float64
		for _, v := range g.Pix {
			total += float64(v)
		}
		mean := total / float64(len(g.Pix))
		dst := image.NewGray(g.Bounds())
		for i, v := range g.Pix {
			dst.Pix[i] = clampU8(mean + factor*(float64(v)-mean))
		}
		return dst
	}

	src := toRGBA(img)
	b := src.Bounds()
	var total float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBAAt(x, y)
			total += luminance(c.R, c.G, c.B)
		}
	}
	mean := total / float64(b.Dx()*b.Dy())
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBAAt(x, y)
			dst.SetRGBA(x, y, color.RGBA{
				R: clampU8(mean + factor*(float64(c.R)-mean)),
				G: clampU8(mean + factor*(float64(c.G)-mean)),
				B: clampU8(mean + factor*(float64(c.B)-mean)),
				A: c.A,
			})
		}
	}
	return dst
}

// unsharp sharpens with an unsharp mask: out = in + amount*(in - blur),
// where blur is a 3x3 gaussian. Identity at amount 0 (skipped by the
// pipeline).
func unsharp(img image.Image, amount float64) image.Image {
	if g, ok := img.(*image.Gray); ok {
		blur := blurGray(g)
		dst := image.NewGray(g.Bounds())
		for i, v := range g.Pix {
			dst.Pix[i] = clampU8(float64(v) + amount*(float64(v)-float64(blur.Pix[i])))
		}
		return dst
	}

	src := toRGBA(img)
	blur := blurRGBA(src)
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for i := 0; i < len(src.Pix); i += 4 {
		for ch := 0; ch < 3; ch++ {
			v := float64(src.Pix[i+ch])
			dst.Pix[i+ch] = clampU8(v + amount*(v-float64(blur.Pix[i+ch])))
		}
		dst.Pix[i+3] = src.Pix[i+3]
	}
	return dst
}

// blurGray applies a 3x3 gaussian ([1 2 1]/4 separable) blur.
func blurGray(g *image.Gray) *image.Gray {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	at := func(x, y int) float64 {
		if x < 0 {
			x = 0
		}
		if y < 0 {
			y = 0
		}
		if x >= w {
			x = w - 1
		}
		if y >= h {
			y = h - 1
		}
		return float64(g.Pix[y*g.Stride+x])
	}
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			tmp[y*w+x] = (at(x-1, y) + 2*at(x, y) + at(x+1, y)) / 4
		}
	}
	dst := image.NewGray(b)
	tat := func(x, y int) float64 {
		if y < 0 {
			y = 0
		}
		if y >= h {
			y = h - 1
		}
		return tmp[y*w+x]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Pix[y*dst.Stride+x] = clampU8((tat(x, y-1) + 2*tat(x, y) + tat(x, y+1)) / 4)
		}
	}
	return dst
}

// blurRGBA applies the same 3x3 gaussian to each color channel.
func blurRGBA(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	at := func(x, y, ch int) float64 {
		if x < 0 {
			x = 0
		}
		if y < 0 {
			y = 0
		}
		if x >= w {
			x = w - 1
		}
		if y >= h {
			y = h - 1
		}
		return float64(src.Pix[y*src.Stride+x*4+ch])
	}
	tmp := make([]float64, w*h*3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for ch := 0; ch < 3; ch++ {
				tmp[(y*w+x)*3+ch] = (at(x-1, y, ch) + 2*at(x, y, ch) + at(x+1, y, ch)) / 4
			}
		}
	}
	dst := image.NewRGBA(b)
	tat := func(x, y, ch int) float64 {
		if y < 0 {
			y = 0
		}
		if y >= h {
			y = h - 1
		}
		return tmp[(y*w+x)*3+ch]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for ch := 0; ch < 3; ch++ {
				dst.Pix[y*dst.Stride+x*4+ch] = clampU8((tat(x, y-1, ch) + 2*tat(x, y, ch) + tat(x, y+1, ch)) / 4)
			}
			dst.Pix[y*dst.Stride+x*4+3] = src.Pix[y*src.Stride+x*4+3]
		}
	}
	return dst
}

// Adaptive threshold parameters, matching the desktop optimizer's
// 35-pixel block and constant offset of 10.
const (
	thresholdWindow = 35
	thresholdC      = 10
)

// adaptiveThreshold binarizes a grayscale image against the mean of
// each pixel's local window minus a small constant. The result contains
// only the values 0 and 255.
func adaptiveThreshold(img image.Image) *image.Gray {
	g, ok := img.(*image.Gray)
	if !ok {
		g = grayscale(img).(*image.Gray)
	}
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()

	// Summed-area table for O(1) window means.
	integral := make([]uint64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			integral[(y+1)*(w+1)+x+1] = uint64(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y) +
				integral[y*(w+1)+x+1] + integral[(y+1)*(w+1)+x] - integral[y*(w+1)+x]
		}
	}

	radius := thresholdWindow / 2
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			x0, y0 := x-radius, y-radius
			x1, y1 := x+radius+1, y+radius+1
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
			sum := integral[y1*(w+1)+x1] - integral[y0*(w+1)+x1] - integral[y1*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean := float64(sum) / float64(area)
			if float64(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y) > mean-thresholdC {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

// trimAndPad crops uniform light borders around the page content and
// re-pads with a white margin. Pages with no detectable content pass
// through untouched.
func trimAndPad(img image.Image, pad int) image.Image {
	if pad < 0 {
		pad = 0
	}
	g, ok := img.(*image.Gray)
	if !ok {
		g = grayscale(img).(*image.Gray)
	}
	cut := otsu(g)

	b := g.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if g.GrayAt(x, y).Y <= cut {
				if x < minX {
					minX = x
				}
				if x > maxX {
					maxX = x
				}
				if y < minY {
					minY = y
				}
				if y > maxY {
					maxY = y
				}
			}
		}
	}
	if maxX < minX || maxY < minY {
		return img
	}

	content := image.Rect(minX, minY, maxX+1, maxY+1)
	cw, ch := content.Dx(), content.Dy()
	srcB := img.Bounds()
	// content is in g's coordinates, which equal img's bounds.
	offset := content.Min.Sub(srcB.Min)

	if _, isGray := img.(*image.Gray); isGray {
		dst := image.NewGray(image.Rect(0, 0, cw+2*pad, ch+2*pad))
		for i := range dst.Pix {
			dst.Pix[i] = 255
		}
		stddraw.Draw(dst, image.Rect(pad, pad, pad+cw, pad+ch), img, srcB.Min.Add(offset), stddraw.Src)
		return dst
	}
	dst := image.NewRGBA(image.Rect(0, 0, cw+2*pad, ch+2*pad))
	stddraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, stddraw.Src)
	stddraw.Draw(dst, image.Rect(pad, pad, pad+cw, pad+ch), img, srcB.Min.Add(offset), stddraw.Src)
	return dst
}

// otsu computes the global threshold separating page background from
// content by maximizing between-class variance.
func otsu(g *image.Gray) uint8 {
	var hist [256]int
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[g.GrayAt(x, y).Y]++
		}
	}
	total := b.Dx() * b.Dy()
	var sumAll float64
	for v, n := range hist {
		sumAll += float64(v * n)
	}

	var sumBg, wBg float64
	var best float64
	threshold := 0
	for t := 0; t < 256; t++ {
		wBg += float64(hist[t])
		if wBg == 0 {
			continue
		}
		wFg := float64(total) - wBg
		if wFg == 0 {
			break
		}
		sumBg += float64(t * hist[t])
		meanBg := sumBg / wBg
		meanFg := (sumAll - sumBg) / wFg
		between := wBg * wFg * (meanBg - meanFg) * (meanBg - meanFg)
		if between > best {
			best = between
			threshold = t
		}
	}
	return uint8(threshold)
}

// einkDither reduces the image to 16 gray levels with Floyd-Steinberg
// error diffusion, which renders cleanly on e-ink panels.
func einkDither(img image.Image) *image.Gray {
	g, ok := img.(*image.Gray)
	if !ok {
		g = grayscale(img).(*image.Gray)
	}
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()

	buf := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf[y*w+x] = float64(g.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			old := buf[y*w+x]
			quantized := math.Round(old/17) * 17
			if quantized > 255 {
				quantized = 255
			}
			if quantized < 0 {
				quantized = 0
			}
			dst.Pix[y*dst.Stride+x] = uint8(quantized)
			err := old - quantized
			if x+1 < w {
				buf[y*w+x+1] += err * 7 / 16
			}
			if y+1 < h {
				if x > 0 {
					buf[(y+1)*w+x-1] += err * 3 / 16
				}
				buf[(y+1)*w+x] += err * 5 / 16
				if x+1 < w {
					buf[(y+1)*w+x+1] += err * 1 / 16
				}
			}
		}
	}
	return dst
}
