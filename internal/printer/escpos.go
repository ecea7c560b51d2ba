package printer

import (
	"bytes"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

// ESC/POS commands
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	LF  byte = 0x0A
)

// TextSize selects one of the fixed font/size presets
type TextSize int

const (
	SizeNormal    TextSize = iota // GS ! 0x00
	SizeCondensed                 // ESC M 1
	SizeStandard                  // ESC M 0
	SizeDouble                    // GS ! 0x11
	SizeTriple                    // GS ! 0x22
	SizeQuadruple                 // GS ! 0x33
)

// DefaultTextSize is the preset PrintText always uses
const DefaultTextSize = SizeStandard

var sizePresets = [...][3]byte{
	SizeNormal:    {GS, '!', 0x00},
	SizeCondensed: {ESC, 'M', 0x01},
	SizeStandard:  {ESC, 'M', 0x00},
	SizeDouble:    {GS, '!', 0x11},
	SizeTriple:    {GS, '!', 0x22},
	SizeQuadruple: {GS, '!', 0x33},
}

// Valid reports whether s names a known preset
func (s TextSize) Valid() bool {
	return s >= 0 && int(s) < len(sizePresets)
}

// Command returns the 3-byte command selecting the preset
func (s TextSize) Command() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("unknown text size preset: %d", int(s))
	}
	cmd := sizePresets[s]
	return cmd[:], nil
}

func (s TextSize) String() string {
	switch s {
	case SizeNormal:
		return "normal"
	case SizeCondensed:
		return "condensed"
	case SizeStandard:
		return "standard"
	case SizeDouble:
		return "double"
	case SizeTriple:
		return "triple"
	case SizeQuadruple:
		return "quadruple"
	default:
		return fmt.Sprintf("TextSize(%d)", int(s))
	}
}

// ESCPOSEncoder builds ESC/POS command streams
type ESCPOSEncoder struct {
	buffer *bytes.Buffer
}

// NewESCPOSEncoder creates a new ESC/POS encoder
func NewESCPOSEncoder() *ESCPOSEncoder {
	return &ESCPOSEncoder{
		buffer: new(bytes.Buffer),
	}
}

// LineFeed sends line feed
func (e *ESCPOSEncoder) LineFeed() {
	e.buffer.WriteByte(LF)
}

// SetSizePreset writes the command for one of the fixed presets
func (e *ESCPOSEncoder) SetSizePreset(size TextSize) error {
	cmd, err := size.Command()
	if err != nil {
		return err
	}
	e.buffer.Write(cmd)
	return nil
}

// WriteText writes text as ISO-8859-1. Runes outside Latin-1 become '?'.
func (e *ESCPOSEncoder) WriteText(text string) {
	e.buffer.Write(EncodeLatin1(text))
}

// Write appends raw bytes
func (e *ESCPOSEncoder) Write(data []byte) {
	e.buffer.Write(data)
}

// GetBytes returns the generated ESC/POS commands
func (e *ESCPOSEncoder) GetBytes() []byte {
	return e.buffer.Bytes()
}

// EncodeLatin1 converts text to single-byte ISO-8859-1
func EncodeLatin1(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		b, ok := charmap.ISO8859_1.EncodeRune(r)
		if !ok {
			b = '?'
		}
		out = append(out, b)
	}
	return out
}

// EncodeRawWrite prepends the line feed every raw write starts with
func EncodeRawWrite(payload []byte) []byte {
	encoder := NewESCPOSEncoder()
	encoder.LineFeed()
	encoder.Write(payload)
	return encoder.GetBytes()
}

// EncodeText selects a size preset followed by Latin-1 text
func EncodeText(text string, size TextSize) ([]byte, error) {
	encoder := NewESCPOSEncoder()
	if err := encoder.SetSizePreset(size); err != nil {
		return nil, err
	}
	encoder.WriteText(text)
	return encoder.GetBytes(), nil
}
