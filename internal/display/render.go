package display

import (
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// Render draws lines onto a blank width x height frame.
func Render(width, height int, lines []Line) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, width, height))
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: face,
	}
	ascent := face.Metrics().Ascent.Round()
	for _, l := range lines {
		if l.Text == "" {
			continue
		}
		drawer.Dot = fixed.P(l.X, l.Y+ascent)
		drawer.DrawString(l.Text)
	}
	return img
}
