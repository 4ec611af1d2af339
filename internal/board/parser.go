package board

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

var (
	taskLineRE = regexp.MustCompile(`^- \[(.)\] \*\*\[([^\]]+)\]\*\* (.+)$`)
	subFieldRE = regexp.MustCompile(`^\s+- ([A-Za-z][A-Za-z ]*): (.*)$`)
	idShapeRE  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*-\d{1,4}$`)
)

// ParseError describes a single malformed line encountered while parsing.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("board: line %d: %s", e.Line, e.Message)
}

// cacheEntry holds the last parse result for a board file, keyed by a hash
// of the file's (size, mtime) stat pair so repeated reads within a tick
// avoid re-parsing an unchanged file. Hashing the stat pair rather than
// comparing time.Time directly sidesteps mtime-precision mismatches across
// filesystems (e.g. a networked mount truncating to second resolution)
// that would otherwise serve a stale cache entry after a same-second edit.
type cacheEntry struct {
	statHash uint64
	tasks    []*Task
	order    []string
	err      error
}

var (
	parseCacheMu sync.Mutex
	parseCache   = map[string]cacheEntry{}
)

// statHash combines a file's size and modification time into a single
// fast, well-distributed key via xxhash.
func statHash(info os.FileInfo) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(info.Size()))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(info.ModTime().UnixNano()))
	return xxhash.Sum64(buf[:])
}

// ParseAll performs one linear pass over the board at path, returning every
// task in file order. Results are cached keyed by a hash of the file's
// (size, mtime) stat pair; a second call against an unchanged file returns
// the cached slice without re-reading.
func ParseAll(path string) ([]*Task, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("board: %w", &ParseError{Message: fmt.Sprintf("file not found: %v", err)})
	}
	h := statHash(info)

	parseCacheMu.Lock()
	if entry, ok := parseCache[path]; ok && entry.statHash == h {
		parseCacheMu.Unlock()
		return entry.tasks, entry.err
	}
	parseCacheMu.Unlock()

	tasks, _, err := parseFile(path)

	parseCacheMu.Lock()
	parseCache[path] = cacheEntry{statHash: h, tasks: tasks, err: err}
	parseCacheMu.Unlock()

	return tasks, err
}

// invalidate drops any cached parse of path; called after any mutation.
func invalidate(path string) {
	parseCacheMu.Lock()
	delete(parseCache, path)
	parseCacheMu.Unlock()
}

// parseFile does the actual line-by-line scan, also returning the raw file
// lines so mutation helpers (SetStatus, CollapseCompleted) can rewrite the
// file without losing unrecognized content.
func parseFile(path string) ([]*Task, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("board: opening %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	var tasks []*Task
	seen := map[string]bool{}
	var current *Task

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		lineNo++

		if m := taskLineRE.FindStringSubmatch(line); m != nil {
			status := Status(m[1][0])
			id := m[2]
			title := m[3]

			if !idShapeRE.MatchString(id) {
				return nil, nil, &ParseError{Line: lineNo, Message: fmt.Sprintf("malformed task id %q", id)}
			}
			if seen[id] {
				return nil, nil, &ParseError{Line: lineNo, Message: fmt.Sprintf("duplicate task id %q", id)}
			}
			seen[id] = true

			current = &Task{
				ID:     id,
				Title:  title,
				Status: status,
				Extra:  map[string]string{},
			}
			tasks = append(tasks, current)
			continue
		}

		if current != nil {
			if m := subFieldRE.FindStringSubmatch(line); m != nil {
				label := strings.ToLower(strings.TrimSpace(m[1]))
				value := strings.TrimSpace(m[2])
				switch label {
				case "description":
					current.Description = value
				case "priority":
					current.Priority = Priority(strings.ToUpper(value))
				case "dependencies":
					current.Dependencies = splitDeps(value)
				default:
					current.Extra[m[1]] = value
				}
				continue
			}
		}

		if strings.TrimSpace(line) != "" && !strings.HasPrefix(strings.TrimSpace(line), "#") &&
			!strings.HasPrefix(strings.TrimSpace(line), "<!--") {
			// A non-blank, non-heading, non-comment line that isn't a task
			// header or recognized sub-field ends the current task's block.
			if !strings.HasPrefix(line, "  ") && !strings.HasPrefix(line, "\t") {
				current = nil
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("board: scanning %s: %w", path, err)
	}

	return tasks, lines, nil
}

func splitDeps(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ExtractFullTask renders the markdown block for id, unchanged, as the
// worker's initial PRD input.
func ExtractFullTask(path, id string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("board: opening %s: %w", path, err)
	}
	defer f.Close()

	var block []string
	inBlock := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if m := taskLineRE.FindStringSubmatch(line); m != nil {
			if inBlock {
				break
			}
			if m[2] == id {
				inBlock = true
			}
		} else if inBlock {
			trimmed := strings.TrimSpace(line)
			isSub := strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")
			if trimmed != "" && !isSub {
				break
			}
		}
		if inBlock {
			block = append(block, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("board: scanning %s: %w", path, err)
	}
	if len(block) == 0 {
		return "", fmt.Errorf("board: task %q not found in %s", id, path)
	}
	return strings.Join(block, "\n") + "\n", nil
}
