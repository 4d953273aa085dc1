package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTypeFollowsChain(t *testing.T) {
	inner := NotFound("template", "rectangular")
	outer := Storage("load template", inner)
	wrapped := fmt.Errorf("engine: %w", outer)

	assert.True(t, IsType(wrapped, TypeStorage))
	assert.True(t, IsType(wrapped, TypeNotFound))
	assert.False(t, IsType(wrapped, TypeFormula))
	assert.False(t, IsType(stderrors.New("plain"), TypeStorage))
	assert.False(t, IsType(nil, TypeStorage))
}

func TestSentinelMatchesWithErrorsIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NotFound("price list", "default"))

	assert.True(t, stderrors.Is(err, Sentinel(TypeNotFound)))
	assert.False(t, stderrors.Is(err, Sentinel(TypeInput)))
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"no cause", Input("depth must be positive"), "[INPUT_ERROR] depth must be positive"},
		{"with cause", Config("read config", stderrors.New("boom")), "[CONFIG_ERROR] read config: boom"},
		{"formula", Formula("2 +", stderrors.New("unexpected end")), `[FORMULA_ERROR] formula "2 +": unexpected end`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, TypeValidation, TypeOf(fmt.Errorf("x: %w", New(TypeValidation, "bad"))))
	assert.Equal(t, TypeInternal, TypeOf(stderrors.New("plain")))
}

func TestWithContext(t *testing.T) {
	err := Input("missing dimension").WithContext("dimension", "depth")
	assert.Equal(t, "depth", err.Context["dimension"])
}
