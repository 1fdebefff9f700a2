package presenter

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	presenter := New()
	assert.NotNil(t, presenter)
	assert.Equal(t, os.Stdout, presenter.output)
	assert.Equal(t, os.Stderr, presenter.errorOutput)
	assert.False(t, presenter.quiet)
}

func TestDetectColorMode(t *testing.T) {
	tests := []struct {
		name     string
		noColor  string
		envColor string
		expected ColorMode
	}{
		{"NO_COLOR set", "1", "always", ColorNever},
		{"SKILLFETCH_COLOR always", "", "always", ColorAlways},
		{"SKILLFETCH_COLOR force", "", "force", ColorAlways},
		{"SKILLFETCH_COLOR never", "", "never", ColorNever},
		{"SKILLFETCH_COLOR off", "", "off", ColorNever},
		{"SKILLFETCH_COLOR auto", "", "auto", ColorAuto},
		{"default", "", "", ColorAuto},
		{"invalid value", "", "rainbow", ColorAuto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tt.noColor)
			t.Setenv("SKILLFETCH_COLOR", tt.envColor)

			assert.Equal(t, tt.expected, detectColorMode())
		})
	}
}

func TestError(t *testing.T) {
	var errorOutput bytes.Buffer
	presenter := NewWithOptions(nil, &errorOutput, ColorNever)

	err := errors.New("clone failed")
	presenter.Error(err, "anthropics/skills")

	output := errorOutput.String()
	assert.Contains(t, output, "[ERROR]")
	assert.Contains(t, output, "anthropics/skills")
	assert.Contains(t, output, "clone failed")

	errorOutput.Reset()
	presenter.Error(err, "")
	assert.Equal(t, "[ERROR] clone failed\n", errorOutput.String())

	errorOutput.Reset()
	presenter.Error(nil, "context")
	assert.Empty(t, errorOutput.String())
}

func TestMessages(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)

	presenter.Success("Copied 3 skills")
	presenter.Warning("skills path not found")
	presenter.Info("Processing anthropics/skills")

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "✓ Copied 3 skills", lines[0])
	assert.Equal(t, "⚠ skills path not found", lines[1])
	assert.Equal(t, "Processing anthropics/skills", lines[2])
}

func TestItem(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)

	presenter.Item("org/repo (12 stars, MIT)", "A skills pack...")
	presenter.Item("org/bare", "")

	assert.Equal(t, "  - org/repo (12 stars, MIT)\n    A skills pack...\n  - org/bare\n", output.String())
}

func TestSection(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)

	presenter.Section("Test Section")

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Test Section", lines[0])
	assert.Equal(t, strings.Repeat("-", len("Test Section")), lines[1])
}

func TestSeparator(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)

	presenter.Separator()

	assert.Equal(t, strings.Repeat("=", 60)+"\n", output.String())
}

func TestQuietMode(t *testing.T) {
	var output bytes.Buffer
	presenter := NewWithOptions(&output, nil, ColorNever)
	presenter.SetQuiet(true)
	assert.True(t, presenter.IsQuiet())

	presenter.Success("a")
	presenter.Warning("b")
	presenter.Info("c")
	presenter.Item("d", "e")
	presenter.Section("f")
	presenter.Separator()
	assert.Empty(t, output.String())

	presenter.SetQuiet(false)
	assert.False(t, presenter.IsQuiet())
}

func TestColorModeConfiguration(t *testing.T) {
	oldNoColor := color.NoColor
	defer func() { color.NoColor = oldNoColor }()

	NewWithOptions(&bytes.Buffer{}, &bytes.Buffer{}, ColorNever)
	assert.True(t, color.NoColor)

	NewWithOptions(&bytes.Buffer{}, &bytes.Buffer{}, ColorAlways)
	assert.False(t, color.NoColor)
}

func TestGlobalFunctions(t *testing.T) {
	originalPresenter := defaultPresenter
	defer func() {
		defaultPresenter = originalPresenter
	}()

	var output, errorOutput bytes.Buffer
	defaultPresenter = NewWithOptions(&output, &errorOutput, ColorNever)

	Error(errors.New("test error"), "error context")
	assert.Contains(t, errorOutput.String(), "[ERROR] error context: test error")

	Success("success message")
	Warning("warning message")
	Info("info message")
	Item("item", "")
	Section("Summary")
	Separator()
	result := output.String()
	assert.Contains(t, result, "✓ success message")
	assert.Contains(t, result, "⚠ warning message")
	assert.Contains(t, result, "info message")
	assert.Contains(t, result, "  - item")
	assert.Contains(t, result, "Summary\n-------")
	assert.Contains(t, result, "=====")

	SetQuiet(true)
	assert.True(t, IsQuiet())
	output.Reset()
	Info("should not appear")
	assert.Empty(t, output.String())
	SetQuiet(false)
}
