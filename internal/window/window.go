// Package window implements the per-connection braille window state
// (component C6): a text/attribute/cursor buffer and its merge into a
// dot-pattern array ready for the true driver's writeWindow entry point.
//
// The validate-then-apply shape below follows the teacher's
// internal/fs/workspace.go Workspace methods: resolve and check every
// input before mutating any state, so a rejected WRITE never leaves the
// window half-updated.
package window

import (
	"errors"
	"unicode/utf8"

	"github.com/brlapi/brlapi-core/internal/brlerr"
)

// TextTable converts a rune to its dot pattern. It stands in for the
// external text-table compiler (out of scope per spec §1); the server
// core only depends on this narrow interface (spec §6).
type TextTable interface {
	ConvertToDots(r rune) byte
}

// CursorOverlay supplies the dot pattern to OR onto the cursor cell, or 0
// when the screen cursor is invisible/disabled (spec §3).
type CursorOverlay interface {
	Overlay() byte
}

var (
	// ErrConversion is returned when WRITE text cannot be converted under
	// the requested (or default) charset.
	ErrConversion = errors.New("window: charset conversion failed")
)

// Window is a connection's braille display buffer.
type Window struct {
	size   int
	text   []rune
	andAtt []byte
	orAtt  []byte
	cursor int // 0 = no cursor, else 1-based cell index
}

// New creates an empty (all-blank) window of the given display size.
func New(size int) *Window {
	w := &Window{size: size}
	w.clearLocked()
	return w
}

// Size returns the display size this window is shaped for.
func (w *Window) Size() int {
	return w.size
}

// Clear empties the window: blank text, all-ones and-attrs, all-zero
// or-attrs, no cursor — the effect of a WRITE with only flags=0 (spec
// §4.6).
func (w *Window) Clear() {
	w.clearLocked()
}

func (w *Window) clearLocked() {
	w.text = make([]rune, w.size)
	for i := range w.text {
		w.text[i] = ' '
	}
	w.andAtt = make([]byte, w.size)
	for i := range w.andAtt {
		w.andAtt[i] = 0xFF
	}
	w.orAtt = make([]byte, w.size)
	w.cursor = 0
}

// Region is a 1-based, inclusive-start range within the display. Size<0
// means "fill the rest of the display with blanks" (spec §4.6); Resolve
// turns that into a concrete [Begin,End) cell range.
type Region struct {
	Begin int // 1-based
	Size  int // may be negative
}

// Resolve converts begin/size (with the -n "fill to end" convention) into
// a concrete zero-based [start,end) slice range, validated against
// displaySize.
func (r Region) Resolve(displaySize int) (start, end int, err error) {
	if r.Begin < 1 || r.Begin > displaySize {
		return 0, 0, brlerr.New(brlerr.InvalidPacket, "region begin out of range")
	}
	start = r.Begin - 1
	if r.Size < 0 {
		end = displaySize
		return start, end, nil
	}
	if r.Size < 1 {
		return 0, 0, brlerr.New(brlerr.InvalidPacket, "region size must be >= 1 or a negative fill marker")
	}
	end = start + r.Size
	if end > displaySize {
		return 0, 0, brlerr.New(brlerr.InvalidPacket, "region extends past display size")
	}
	return start, end, nil
}

// WriteInput is the fully-decoded, not-yet-applied content of a WRITE
// packet (spec §4.6). The Has* flags and nil slices distinguish "absent"
// from "present and empty."
type WriteInput struct {
	HasRegion bool
	Region    Region

	HasText bool
	Text    []byte
	Charset string // empty is decoded as UTF-8

	AndAttr []byte // nil means "default: all-ones over the region"
	OrAttr  []byte // nil means "default: all-zeros over the region"

	HasCursor bool
	Cursor    int // 0 clears, 1..displaySize sets
}

// decodeText converts raw WRITE text bytes into runes per spec §4.6: the
// server supports UTF-8 and Latin-1 natively; any other named charset is
// rejected here since the runtime conversion facility (ICU-equivalent) is
// a host collaborator out of this repo's scope (spec §1).
func decodeText(b []byte, charset string) ([]rune, error) {
	switch charset {
	case "", "utf-8", "UTF-8":
		if !utf8.Valid(b) {
			return nil, ErrConversion
		}
		return []rune(string(b)), nil
	case "iso-8859-1", "ISO-8859-1", "latin1":
		out := make([]rune, len(b))
		for i, c := range b {
			out[i] = rune(c)
		}
		return out, nil
	default:
		return nil, ErrConversion
	}
}

// Apply validates and applies a decoded WRITE to the window. On any
// error the window is left untouched (spec's validate-before-mutate
// rule); on success the window now holds the new content.
func (w *Window) Apply(in WriteInput) error {
	if !in.HasRegion && !in.HasText && in.AndAttr == nil && in.OrAttr == nil && !in.HasCursor {
		w.Clear()
		return nil
	}

	region := in.Region
	if !in.HasRegion {
		// Deprecated zero-zero region: treat as full display (spec §9
		// open question, resolved here per the reference behaviour).
		region = Region{Begin: 1, Size: -1}
	}
	start, end, err := region.Resolve(w.size)
	if err != nil {
		return err
	}
	size := end - start

	var runes []rune
	if in.HasText {
		runes, err = decodeText(in.Text, in.Charset)
		if err != nil {
			return brlerr.New(brlerr.InvalidPacket, err.Error())
		}
		if len(runes) > size {
			runes = runes[:size]
		}
	}

	andAttr := in.AndAttr
	if andAttr == nil {
		andAttr = make([]byte, size)
		for i := range andAttr {
			andAttr[i] = 0xFF
		}
	} else if len(andAttr) != size {
		return brlerr.New(brlerr.InvalidPacket, "andAttr length does not match region size")
	}

	orAttr := in.OrAttr
	if orAttr == nil {
		orAttr = make([]byte, size)
	} else if len(orAttr) != size {
		return brlerr.New(brlerr.InvalidPacket, "orAttr length does not match region size")
	}

	if in.HasCursor {
		if in.Cursor < 0 || in.Cursor > w.size {
			return brlerr.New(brlerr.InvalidPacket, "cursor out of range")
		}
	}

	// All inputs validated: mutate.
	for i := 0; i < size; i++ {
		if in.HasText && i < len(runes) {
			w.text[start+i] = runes[i]
		} else if in.HasText {
			w.text[start+i] = ' '
		}
		w.andAtt[start+i] = andAttr[i]
		w.orAtt[start+i] = orAttr[i]
	}
	if in.HasCursor {
		w.cursor = in.Cursor
	}
	return nil
}

// Render produces the final dot-pattern array to hand to the true
// driver's writeWindow entry point (spec §3): out[i] = (textTable(text[i])
// AND andAttr[i]) OR orAttr[i], then the cursor overlay is OR'd onto the
// cursor cell.
func (w *Window) Render(table TextTable, overlay CursorOverlay) []byte {
	out := make([]byte, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = (table.ConvertToDots(w.text[i]) & w.andAtt[i]) | w.orAtt[i]
	}
	if w.cursor != 0 {
		out[w.cursor-1] |= overlay.Overlay()
	}
	return out
}

// Cursor returns the current 1-based cursor position, or 0 if unset.
func (w *Window) Cursor() int {
	return w.cursor
}
