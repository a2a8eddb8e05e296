package player

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
)

// kitty caps each escape payload at 4096 bytes of base64
const chunkSize = 4096

// KittyRenderer presents the composited canvas using Kitty's graphics
// protocol. It satisfies Output.
type KittyRenderer struct {
	mu sync.Mutex

	out     io.Writer
	imageID int
	lastW   int
	lastH   int

	// rgb is reused between frames
	rgb []byte

	// useShm transmits through /dev/shm instead of inline base64
	useShm  bool
	shmSeq  int
	shmName string

	// Cell position for placement (1-indexed row/col)
	cellRow int
	cellCol int

	// Terminal dimensions in cells and pixels
	termCols     int
	termRows     int
	termWidthPx  int
	termHeightPx int
}

// NewKittyRenderer creates a new Kitty graphics renderer
func NewKittyRenderer(out io.Writer) *KittyRenderer {
	return &KittyRenderer{
		out:     out,
		imageID: CanvasImageID,
	}
}

// SetOutput changes the output writer
func (r *KittyRenderer) SetOutput(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = w
}

// SetUseShm switches to shared memory transmission. Only enable it after
// ShmSupported reported true.
func (r *KittyRenderer) SetUseShm(use bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.useShm = use
	r.shmName = fmt.Sprintf("/lipsync-%d", os.Getpid())
}

// SetTerminalSize sets the terminal dimensions (cells and pixels)
func (r *KittyRenderer) SetTerminalSize(cols, rows, widthPx, heightPx int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.termCols = cols
	r.termRows = rows
	r.termWidthPx = widthPx
	r.termHeightPx = heightPx
}

// SetCellPosition sets the cell position for canvas placement (1-indexed)
func (r *KittyRenderer) SetCellPosition(row, col int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cellRow = row
	r.cellCol = col
}

// CenterCanvas positions a canvas of the given pixel size horizontally
// centered, starting at topRow
func (r *KittyRenderer) CenterCanvas(widthPx, heightPx, topRow int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.termCols <= 0 || r.termRows <= 0 || r.termWidthPx <= 0 || r.termHeightPx <= 0 {
		return
	}
	cellW := r.termWidthPx / r.termCols
	if cellW == 0 {
		return
	}
	cols := (widthPx + cellW - 1) / cellW

	r.cellCol = max((r.termCols-cols)/2+1, 1)
	r.cellRow = max(topRow, 1)
}

// CanvasRows returns how many terminal rows a canvas of heightPx covers
func (r *KittyRenderer) CanvasRows(heightPx int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.termRows <= 0 || r.termHeightPx <= 0 {
		return 0
	}
	cellH := r.termHeightPx / r.termRows
	if cellH == 0 {
		return 0
	}
	return (heightPx + cellH - 1) / cellH
}

// Present draws the canvas. Alpha is dropped since the canvas is always
// opaque, which cuts a quarter of the payload.
func (r *KittyRenderer) Present(canvas *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := canvas.Bounds()
	width, height := b.Dx(), b.Dy()
	r.rgb = toRGB(r.rgb, canvas)

	// Buffer the entire frame to write atomically
	var buf bytes.Buffer

	// Begin synchronized update
	buf.WriteString("\x1b[?2026h")
	// Save cursor position
	buf.WriteString("\x1b7")

	if r.lastW > 0 {
		fmt.Fprintf(&buf, "\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", r.imageID)
	}

	if r.cellRow > 0 && r.cellCol > 0 {
		fmt.Fprintf(&buf, "\x1b[%d;%dH", r.cellRow, r.cellCol)
	} else {
		buf.WriteString("\x1b[H")
	}

	if r.useShm {
		if err := r.writeShm(&buf, width, height); err != nil {
			return err
		}
	} else {
		writeChunks(&buf, r.rgb, width, height, r.imageID)
	}

	r.lastW = width
	r.lastH = height

	// Restore cursor position
	buf.WriteString("\x1b8")
	// End synchronized update
	buf.WriteString("\x1b[?2026l")

	_, err := r.out.Write(buf.Bytes())
	return err
}

// writeShm hands the frame to the terminal through a shared memory object.
// The terminal unlinks it after reading, so every frame gets a fresh name.
func (r *KittyRenderer) writeShm(buf *bytes.Buffer, width, height int) error {
	r.shmSeq++
	name := fmt.Sprintf("%s-%d", r.shmName, r.shmSeq)
	if err := os.WriteFile("/dev/shm"+name, r.rgb, 0600); err != nil {
		return fmt.Errorf("write shm frame: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(name))
	fmt.Fprintf(buf, "\x1b_Ga=T,f=24,s=%d,v=%d,i=%d,t=s,S=%d,q=2;%s\x1b\\",
		width, height, r.imageID, len(r.rgb), encoded)
	return nil
}

// writeChunks emits a transmit-and-display command, split into chunks.
//
//	a=T  transmit and display
//	f=24 24-bit RGB
//	s,v  width and height in pixels
//	i    image ID, reused so each frame replaces the last
//	q=2  suppress responses
//	m    1 while more chunks follow
func writeChunks(buf *bytes.Buffer, rgb []byte, width, height, id int) {
	encoded := base64.StdEncoding.EncodeToString(rgb)

	first := true
	for len(encoded) > 0 {
		chunk := encoded
		more := 0

		if len(chunk) > chunkSize {
			chunk = encoded[:chunkSize]
			encoded = encoded[chunkSize:]
			more = 1
		} else {
			encoded = ""
		}

		if first {
			fmt.Fprintf(buf, "\x1b_Ga=T,f=24,s=%d,v=%d,i=%d,q=2,m=%d;%s\x1b\\",
				width, height, id, more, chunk)
			first = false
		} else {
			fmt.Fprintf(buf, "\x1b_Gm=%d;%s\x1b\\", more, chunk)
		}
	}
}

// toRGB packs an RGBA canvas into RGB24, reusing dst when it is large enough
func toRGB(dst []byte, canvas *image.RGBA) []byte {
	b := canvas.Bounds()
	n := b.Dx() * b.Dy() * 3
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	j := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := canvas.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			dst[j] = canvas.Pix[i]
			dst[j+1] = canvas.Pix[i+1]
			dst[j+2] = canvas.Pix[i+2]
			i += 4
			j += 3
		}
	}
	return dst
}

// Clear deletes the canvas image from the terminal
func (r *KittyRenderer) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastW == 0 {
		return nil
	}
	r.lastW, r.lastH = 0, 0
	_, err := fmt.Fprintf(r.out, "\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", r.imageID)
	return err
}
