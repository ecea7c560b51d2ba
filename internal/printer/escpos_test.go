package printer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextSizeCommand(t *testing.T) {
	tests := []struct {
		size TextSize
		want []byte
	}{
		{SizeNormal, []byte{0x1d, 0x21, 0x00}},
		{SizeCondensed, []byte{0x1b, 0x4d, 0x01}},
		{SizeStandard, []byte{0x1b, 0x4d, 0x00}},
		{SizeDouble, []byte{0x1d, 0x21, 0x11}},
		{SizeTriple, []byte{0x1d, 0x21, 0x22}},
		{SizeQuadruple, []byte{0x1d, 0x21, 0x33}},
	}

	for _, tt := range tests {
		t.Run(tt.size.String(), func(t *testing.T) {
			got, err := tt.size.Command()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTextSizeCommand_Invalid(t *testing.T) {
	for _, size := range []TextSize{-1, 6, 42} {
		_, err := size.Command()
		assert.Error(t, err)
		assert.False(t, size.Valid())
	}
}

func TestTextSizeCommand_DoesNotAlias(t *testing.T) {
	cmd, err := SizeStandard.Command()
	require.NoError(t, err)
	cmd[2] = 0xff

	again, _ := SizeStandard.Command()
	assert.Equal(t, byte(0x00), again[2])
}

func TestDefaultTextSize(t *testing.T) {
	assert.Equal(t, TextSize(2), DefaultTextSize)
}

func TestEncodeLatin1(t *testing.T) {
	assert.Equal(t, []byte("Hello"), EncodeLatin1("Hello"))
	assert.Equal(t, []byte{0xc4, 0xf6, 0xdf}, EncodeLatin1("Äöß"))
	assert.Equal(t, []byte{'a', '?', 'b'}, EncodeLatin1("a日b"))
	assert.Empty(t, EncodeLatin1(""))
}

func TestEncodeRawWrite(t *testing.T) {
	assert.Equal(t, []byte{LF}, EncodeRawWrite(nil))
	assert.Equal(t, []byte{LF, 0x1b, 0x40}, EncodeRawWrite([]byte{0x1b, 0x40}))
}

func TestEncodeText(t *testing.T) {
	got, err := EncodeText("Hi", SizeDouble)
	require.NoError(t, err)
	assert.Equal(t, []byte{GS, '!', 0x11, 'H', 'i'}, got)

	_, err = EncodeText("Hi", TextSize(7))
	assert.Error(t, err)
}

func TestESCPOSEncoder(t *testing.T) {
	e := NewESCPOSEncoder()
	require.NoError(t, e.SetSizePreset(SizeCondensed))
	e.WriteText("x")
	e.LineFeed()
	e.Write([]byte{GS, 'V', 1})

	assert.Equal(t, []byte{ESC, 'M', 0x01, 'x', LF, GS, 'V', 1}, e.GetBytes())

	assert.Error(t, e.SetSizePreset(TextSize(9)))
	assert.Len(t, e.GetBytes(), 8)
}
