package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeArgumentsStrictJSON(t *testing.T) {
	args := DecodeArguments(`{"path": "main.go", "limit": 5}`)
	assert.Equal(t, "main.go", args["path"])
	assert.Equal(t, float64(5), args["limit"])
}

func TestDecodeArgumentsRepairsAlmostJSON(t *testing.T) {
	args := DecodeArguments(`{path: 'main.go', "flag": true,}`)
	assert.Equal(t, "main.go", args["path"])
	assert.Equal(t, true, args["flag"])
}

func TestDecodeArgumentsEmptyAndNull(t *testing.T) {
	assert.Empty(t, DecodeArguments(""))
	assert.Empty(t, DecodeArguments("   "))
	assert.Empty(t, DecodeArguments("null"))
}

func TestDecodeArgumentsHopelessInputDegradesToEmpty(t *testing.T) {
	args := DecodeArguments(`<<<definitely not json>>>`)
	assert.NotNil(t, args)
	assert.Empty(t, args)
}

func TestMustMarshalString(t *testing.T) {
	assert.Equal(t, `{"a":1}`, MustMarshalString(map[string]int{"a": 1}))
	assert.Equal(t, "{}", MustMarshalString(func() {}))
}
