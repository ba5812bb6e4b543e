// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package configtmpl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnv(t *testing.T) {
	t.Run("will return an empty string", func(t *testing.T) {
		t.Run("if the environment variable is not set", func(t *testing.T) {
			assert.Empty(t, Env("DALI_CONFIGTMPL_TEST_UNSET"))
		})
	})

	t.Run("will return the value", func(t *testing.T) {
		t.Run("if the environment variable is set", func(t *testing.T) {
			t.Setenv("DALI_CONFIGTMPL_TEST", "4k")
			assert.Equal(t, "4k", Env("DALI_CONFIGTMPL_TEST"))
		})
	})
}

func TestDefault(t *testing.T) {
	testCases := []struct {
		Name     string
		Def      any
		V        any
		Expected any
	}{
		{Name: "nil value", Def: 8080, V: nil, Expected: 8080},
		{Name: "empty string", Def: "1m", V: "", Expected: "1m"},
		{Name: "zero int", Def: 8080, V: 0, Expected: 8080},
		{Name: "set string", Def: "1m", V: "4k", Expected: "4k"},
		{Name: "set int", Def: 8080, V: 9090, Expected: 9090},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Name, func(t *testing.T) {
			assert.Equal(t, testCase.Expected, Default(testCase.Def, testCase.V))
		})
	}
}
