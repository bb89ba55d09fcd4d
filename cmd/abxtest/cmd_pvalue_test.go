package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPValueCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"pvalue", "5", "5"})
	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "5/5 p=0.031 (0.03125)\n", out.String())
}

func TestPValueCommandRejectsZeroTries(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"pvalue", "0", "0"})
	assert.Error(t, rootCmd.Execute())
}
