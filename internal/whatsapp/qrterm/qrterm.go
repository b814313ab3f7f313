// Package qrterm renders pairing QR codes as terminal text.
package qrterm

import (
	"fmt"
	"image/color"
	"io"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const quietZone = 2

// Render writes code as a QR symbol using half-block characters, two module
// rows per text line. Light modules are drawn so the code scans on dark
// terminals.
func Render(w io.Writer, code string) error {
	symbol, err := qr.Encode(code, qr.L, qr.Auto)
	if err != nil {
		return fmt.Errorf("failed to encode QR code: %w", err)
	}
	_, err = io.WriteString(w, Text(symbol))
	return err
}

// Text converts an encoded symbol into half-block text.
func Text(symbol barcode.Barcode) string {
	bounds := symbol.Bounds()
	size := bounds.Dx()

	light := func(x, y int) bool {
		if x < 0 || y < 0 || x >= size || y >= size {
			return true
		}
		return !isDark(symbol.At(bounds.Min.X+x, bounds.Min.Y+y))
	}

	var b strings.Builder
	for y := -quietZone; y < size+quietZone; y += 2 {
		for x := -quietZone; x < size+quietZone; x++ {
			top, bottom := light(x, y), light(x, y+1)
			switch {
			case top && bottom:
				b.WriteString("█")
			case top:
				b.WriteString("▀")
			case bottom:
				b.WriteString("▄")
			default:
				b.WriteString(" ")
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func isDark(c color.Color) bool {
	r, g, bl, _ := c.RGBA()
	return (r+g+bl)/3 < 0x8000
}
