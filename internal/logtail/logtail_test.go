package logtail

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "watch.log")

	var content strings.Builder
	var expectedAll []string
	for i := 1; i <= 10; i++ {
		line := fmt.Sprintf("Line %d", i)
		content.WriteString(line + "\n")
		expectedAll = append(expectedAll, line)
	}
	if err := os.WriteFile(logPath, []byte(content.String()), 0644); err != nil {
		t.Fatalf("failed to create test log file: %v", err)
	}

	tests := []struct {
		name     string
		maxLines int
		expected []string
	}{
		{name: "read all (0)", maxLines: 0, expected: expectedAll},
		{name: "read all (negative)", maxLines: -1, expected: expectedAll},
		{name: "read partial (5)", maxLines: 5, expected: expectedAll[5:]},
		{name: "read exactly all (10)", maxLines: 10, expected: expectedAll},
		{name: "read more than exists (20)", maxLines: 20, expected: expectedAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(logPath, tt.maxLines)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Read() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "absent.log"), 5)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got != nil {
		t.Errorf("Read() = %v, want nil", got)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Entry
	}{
		{
			name:  "console with fields",
			input: "09:30:00.000\tinfo\ttripsync.syncqueue\tsync queue drained\t{\"applied\": 1}",
			expected: Entry{
				Time:    "09:30:00.000",
				Level:   "INFO",
				Logger:  "tripsync.syncqueue",
				Message: "sync queue drained",
				Fields:  `{"applied": 1}`,
			},
		},
		{
			name:  "console without fields",
			input: "09:30:01.000\tWARN\ttripsync.mirror\tremote list failed",
			expected: Entry{
				Time:    "09:30:01.000",
				Level:   "WARN",
				Logger:  "tripsync.mirror",
				Message: "remote list failed",
			},
		},
		{
			name:  "json",
			input: `{"level":"error","ts":"2024-03-01T09:30:00.000Z","logger":"tripsync.remote","msg":"breaker open","state":"open","attempts":3}`,
			expected: Entry{
				Time:    "2024-03-01T09:30:00.000Z",
				Level:   "ERROR",
				Logger:  "tripsync.remote",
				Message: "breaker open",
				Fields:  `{"attempts": 3, "state": "open"}`,
			},
		},
		{
			name:     "plain text",
			input:    "  panic: something odd  ",
			expected: Entry{Message: "panic: something odd"},
		},
		{
			name:     "broken json falls back",
			input:    `{"level":`,
			expected: Entry{Message: `{"level":`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.input)
			tt.expected.Raw = tt.input
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Parse() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestReadEntriesSkipsBlankLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "watch.log")
	data := "09:30:00.000\tINFO\ttripsync\tstarted\n\n09:30:02.000\tERROR\ttripsync.app\tdrain failed\n"
	if err := os.WriteFile(logPath, []byte(data), 0644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	entries, err := ReadEntries(logPath, 0)
	if err != nil {
		t.Fatalf("ReadEntries() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ReadEntries() returned %d entries, want 2", len(entries))
	}
	if entries[1].Level != "ERROR" || entries[1].Message != "drain failed" {
		t.Errorf("ReadEntries()[1] = %+v", entries[1])
	}
}
