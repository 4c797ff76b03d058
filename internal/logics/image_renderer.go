package logics

import (
	"bytes"
	"io"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	challengeImageWidth  = 200
	challengeImageHeight = 80
	challengeFontSize    = 36
	noisePointCount      = 1000
	noiseLineCount       = 4
)

// renderChallengeImage draws the code as distorted text on a noisy
// background and returns the encoded PNG
func renderChallengeImage(code string, rnd io.Reader) ([]byte, error) {
	dc := gg.NewContext(challengeImageWidth, challengeImageHeight)

	dc.SetRGB(0.97, 0.97, 0.97)
	dc.Clear()

	if err := addNoise(dc, rnd); err != nil {
		return nil, err
	}

	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(font, &truetype.Options{Size: challengeFontSize})
	dc.SetFontFace(face)

	// Draw each character with its own color and rotation
	for i, char := range code {
		r := 0.1 + 0.6*float64(i)/float64(len(code))
		g := 0.1 + 0.5*float64(len(code)-i)/float64(len(code))
		b := 0.2 + 0.5*math.Sin(float64(i))
		dc.SetRGB(r, g, b)

		angle := -0.2 + 0.4*float64(i)/float64(len(code))
		x := float64(challengeImageWidth)/8 + float64(i)*float64(challengeImageWidth)/8
		y := float64(challengeImageHeight)/2 + 10*math.Sin(float64(i))

		dc.RotateAbout(angle, x, y)
		dc.DrawStringAnchored(string(char), x, y, 0.5, 0.5)
		dc.RotateAbout(-angle, x, y)
	}

	// Strike-through lines across the text
	for i := 0; i < noiseLineCount; i++ {
		dc.SetRGBA(0.5, 0.5, 0.5, 0.5)
		dc.SetLineWidth(1)

		y1, err := randInt(rnd, 0, challengeImageHeight-1)
		if err != nil {
			return nil, err
		}
		y2, err := randInt(rnd, 0, challengeImageHeight-1)
		if err != nil {
			return nil, err
		}

		dc.DrawLine(0, float64(y1), float64(challengeImageWidth), float64(y2))
		dc.Stroke()
	}

	buf := new(bytes.Buffer)
	if err := dc.EncodePNG(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// addNoise scatters randomly colored points over the background
func addNoise(dc *gg.Context, rnd io.Reader) error {
	for i := 0; i < noisePointCount; i++ {
		x, err := randInt(rnd, 0, challengeImageWidth-1)
		if err != nil {
			return err
		}
		y, err := randInt(rnd, 0, challengeImageHeight-1)
		if err != nil {
			return err
		}

		r, err := randInt(rnd, 0, 99)
		if err != nil {
			return err
		}
		g, err := randInt(rnd, 0, 99)
		if err != nil {
			return err
		}
		b, err := randInt(rnd, 0, 99)
		if err != nil {
			return err
		}

		dc.SetRGBA(float64(r)/100.0, float64(g)/100.0, float64(b)/100.0, 0.3)
		dc.DrawPoint(float64(x), float64(y), 1)
		dc.Fill()
	}
	return nil
}
