package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("Level.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"WARN", WarnLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"invalid", InfoLevel}, // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFieldConstructors(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		f := String("key", "value")
		if f.Key != "key" || f.Value != "value" {
			t.Errorf("String() = %+v, want {Key:key Value:value}", f)
		}
	})

	t.Run("Count", func(t *testing.T) {
		f := Count(42)
		if f.Key != "count" || f.Value != 42 {
			t.Errorf("Count() = %+v, want {Key:count Value:42}", f)
		}
	})

	t.Run("Duration", func(t *testing.T) {
		f := Duration("timeout", 5*time.Second)
		if f.Key != "timeout" || f.Value != "5s" {
			t.Errorf("Duration() = %+v", f)
		}
	})

	t.Run("Error", func(t *testing.T) {
		f := Error(errors.New("test error"))
		if f.Key != "error" || f.Value != "test error" {
			t.Errorf("Error() = %+v", f)
		}
	})

	t.Run("Error_nil", func(t *testing.T) {
		f := Error(nil)
		if f.Key != "error" || f.Value != nil {
			t.Errorf("Error(nil) = %+v", f)
		}
	})

	t.Run("KindName", func(t *testing.T) {
		f := KindName("VMHost")
		if f.Key != "kind_name" || f.Value != "VMHost" {
			t.Errorf("KindName() = %+v", f)
		}
	})
}

func TestTextLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTextLogger(&buf, InfoLevel)

	logger.Info("model uploaded", Count(3))

	line := strings.TrimSuffix(buf.String(), "\n")
	parts := strings.SplitN(line, " - ", 3)
	if len(parts) != 3 {
		t.Fatalf("expected 'timestamp - LEVEL - msg' line, got %q", line)
	}
	if _, err := time.Parse("2006-01-02 15:04:05", parts[0]); err != nil {
		t.Errorf("timestamp %q not in expected format: %v", parts[0], err)
	}
	if parts[1] != "INFO" {
		t.Errorf("level = %q, want INFO", parts[1])
	}
	if parts[2] != "model uploaded count=3" {
		t.Errorf("message = %q", parts[2])
	}
}

func TestTextLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTextLogger(&buf, WarnLevel)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("messages below WarnLevel should be suppressed, got %q", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("warn/error messages missing from %q", output)
	}
}

func TestTextLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTextLogger(&buf, InfoLevel)

	child := logger.With(Component("uploader"))
	child.Info("starting")

	if !strings.Contains(buf.String(), "component=uploader") {
		t.Errorf("preset field missing from %q", buf.String())
	}

	// Parent must not inherit the child's fields
	buf.Reset()
	logger.Info("parent message")
	if strings.Contains(buf.String(), "component=uploader") {
		t.Errorf("parent logger leaked child fields: %q", buf.String())
	}
}

func TestJSONLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, DebugLevel)

	logger.Debug("fetching custom nodes", Server("http://localhost:8080"))

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry.Level != "DEBUG" {
		t.Errorf("level = %q, want DEBUG", entry.Level)
	}
	if entry.Message != "fetching custom nodes" {
		t.Errorf("msg = %q", entry.Message)
	}
	if entry.Fields["server"] != "http://localhost:8080" {
		t.Errorf("fields = %+v", entry.Fields)
	}
	if _, err := time.Parse(time.RFC3339Nano, entry.Time); err != nil {
		t.Errorf("time %q not RFC3339Nano: %v", entry.Time, err)
	}
}

func TestMergeFieldsLaterValuesWin(t *testing.T) {
	merged := mergeFields(
		[]Field{String("a", "preset"), String("b", "preset")},
		[]Field{String("b", "override"), String("c", "extra")},
	)

	if len(merged) != 3 {
		t.Fatalf("len = %d, want 3", len(merged))
	}
	if merged[1].Value != "override" {
		t.Errorf("duplicate key not overridden: %+v", merged)
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()

	// Must be safe to call every method
	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error", Error(errors.New("boom")))
	logger.With(String("k", "v")).Info("child")
	logger.SetLevel(DebugLevel)

	if logger.GetLevel() != InfoLevel {
		t.Errorf("NopLogger.GetLevel() = %v, want InfoLevel", logger.GetLevel())
	}
}
