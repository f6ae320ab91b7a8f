package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError_MessageAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := GeneralError("doing the thing", cause)
	assert.Equal(t, "doing the thing: boom", err.Error())
	assert.True(t, errors.Is(err, cause))

	bare := ConfigError("missing value", nil)
	assert.Equal(t, "missing value", bare.Error())
}

func TestExitError_CodesPerClass(t *testing.T) {
	for want, err := range map[int]*ExitError{
		ExitGeneral:     GeneralError("", nil),
		ExitConfig:      ConfigError("", nil),
		ExitSchemaParse: SchemaParseError("", nil),
		ExitDBConnect:   DBConnectError("", nil),
		ExitCompile:     CompileError("", nil),
	} {
		require.NotNil(t, err)
		assert.Equal(t, want, err.Code)
	}
}
