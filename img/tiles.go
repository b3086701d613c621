package img

import (
	"fmt"
	"image"

	"github.com/ethanbass/amfinder/num"
	"golang.org/x/image/draw"
)

// Tile is one square cell of the grid laid over an image.
type Tile struct {
	Row, Col int
	Rect     image.Rectangle
}

func (t Tile) String() string {
	return fmt.Sprintf("tile(%d,%d) %v", t.Row, t.Col, t.Rect)
}

// Grid returns the number of complete tiles of the given size which fit in bounds.
func Grid(bounds image.Rectangle, size int) (rows, cols int) {
	if size <= 0 {
		return 0, 0
	}
	return bounds.Dy() / size, bounds.Dx() / size
}

// Tiles cuts bounds into size x size squares in row major order. Partial tiles
// at the right and bottom edges are skipped.
func Tiles(bounds image.Rectangle, size int) []Tile {
	rows, cols := Grid(bounds, size)
	tiles := make([]Tile, 0, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			p := bounds.Min.Add(image.Pt(c*size, r*size))
			tiles = append(tiles, Tile{Row: r, Col: c, Rect: image.Rectangle{Min: p, Max: p.Add(image.Pt(size, size))}})
		}
	}
	return tiles
}

// Batch converts the tiles to a network input array of shape [len(tiles), out, out, 3]
// with values in the range 0-1. Tiles which are not out pixels square are resampled.
func Batch(src image.Image, tiles []Tile, out int) *num.Array {
	arr := num.NewArray(len(tiles), out, out, 3)
	for i, t := range tiles {
		dst := NewRGBFrom(arr.Sample(i), out, out)
		if t.Rect.Dx() == out && t.Rect.Dy() == out {
			draw.Draw(dst, dst.Bounds(), src, t.Rect.Min, draw.Src)
		} else {
			draw.BiLinear.Scale(dst, dst.Bounds(), src, t.Rect, draw.Src, nil)
		}
	}
	return arr
}
