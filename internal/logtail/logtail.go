package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Entry is one log line.
type Entry struct {
	Time    string
	Level   string
	Logger  string
	Message string
	Fields  string
	Raw     string
}

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines returns every line. A missing file yields no lines.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// ReadEntries is Read followed by Parse on every non-blank line.
func ReadEntries(path string, maxLines int) ([]Entry, error) {
	lines, err := Read(path, maxLines)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, Parse(line))
	}
	return entries, nil
}

// Parse splits a zap console or JSON line. Level is upper-cased.
func Parse(line string) Entry {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		if e, ok := parseJSON(trimmed); ok {
			e.Raw = line
			return e
		}
	}

	parts := strings.SplitN(line, "\t", 5)
	if len(parts) < 4 {
		return Entry{Message: trimmed, Raw: line}
	}
	e := Entry{
		Time:    parts[0],
		Level:   strings.ToUpper(parts[1]),
		Logger:  parts[2],
		Message: parts[3],
		Raw:     line,
	}
	if len(parts) == 5 {
		e.Fields = strings.TrimSpace(parts[4])
	}
	return e
}

var reservedKeys = map[string]bool{"ts": true, "level": true, "logger": true, "msg": true, "caller": true, "stacktrace": true}

func parseJSON(line string) (Entry, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(line), &obj); err != nil {
		return Entry{}, false
	}
	str := func(k string) string {
		if v, ok := obj[k]; ok {
			return fmt.Sprint(v)
		}
		return ""
	}
	e := Entry{
		Time:    str("ts"),
		Level:   strings.ToUpper(str("level")),
		Logger:  str("logger"),
		Message: str("msg"),
	}

	extra := make(map[string]any)
	for k, v := range obj {
		if !reservedKeys[k] {
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		keys := make([]string, 0, len(extra))
		for k := range extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			v, _ := json.Marshal(extra[k])
			parts = append(parts, fmt.Sprintf("%q: %s", k, v))
		}
		e.Fields = "{" + strings.Join(parts, ", ") + "}"
	}
	return e, true
}
