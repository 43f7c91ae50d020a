package injector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddrArithmetic(t *testing.T) {
	assert := assert.New(t)

	a := TranslatedAddr(0x1000)
	assert.Equal(TranslatedAddr(0x1010), a.Add(0x10))
	assert.Equal(TranslatedAddr(0xff0), a.Sub(0x10))
	assert.Equal(TranslatedAddr(0x2000), a.Mul(2))
	assert.Equal(TranslatedAddr(0x800), a.Div(2))

	r := RawAddr(0x1000)
	assert.Equal(Raw, r.Add(1).Domain)
	assert.Equal(int64(0x10), a.Add(0x10).Diff(a))
	assert.Equal(int64(-0x10), a.Diff(a.Add(0x10)))
}

func TestAddrComparison(t *testing.T) {
	assert := assert.New(t)

	lo, hi := RawAddr(0x10), TranslatedAddr(0x20)
	assert.True(lo.Less(hi))
	assert.False(hi.Less(lo))
	assert.Equal(-1, lo.Compare(hi))
	assert.Equal(1, hi.Compare(lo))
	assert.Equal(0, hi.Compare(hi.AsRaw()))

	// Equality ignores the domain.
	assert.True(RawAddr(0x20).Equal(hi))
	assert.Equal(Translated, RawAddr(1).AsTranslated().Domain)
}

func TestAddrNil(t *testing.T) {
	assert.True(t, Nil.IsNil())
	assert.True(t, TranslatedAddr(0).IsNil())
	assert.False(t, RawAddr(1).IsNil())
}

func TestAddrString(t *testing.T) {
	assert.Equal(t, "0x401000", RawAddr(0x401000).String())
	assert.Equal(t, "tr:0x401000", TranslatedAddr(0x401000).String())
	assert.Equal(t, "translated", Translated.String())
}
