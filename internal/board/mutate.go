package board

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SetStatus edits, in place, the single status character for task id's
// block, under an exclusive file lock. It fails if the task is not found.
func SetStatus(path, id string, newStatus Status) error {
	lock, err := acquireLock(path)
	if err != nil {
		return err
	}
	defer lock.Release()

	_, lines, err := parseFile(path)
	if err != nil {
		return err
	}

	found := false
	for i, line := range lines {
		m := taskLineRE.FindStringSubmatch(line)
		if m == nil || m[2] != id {
			continue
		}
		lines[i] = fmt.Sprintf("- [%c] **[%s]** %s", byte(newStatus), id, m[3])
		found = true
		break
	}
	if !found {
		return fmt.Errorf("board: setStatus: task %q not found", id)
	}

	if err := atomicWriteLines(path, lines); err != nil {
		return err
	}
	invalidate(path)
	return nil
}

// CollapseCompleted archives every task whose status is complete by
// deleting its block and prepending a single
// "<!-- done: ID, ID, ... -->" comment recording the removed IDs. Section
// headings left with no remaining tasks are also removed.
func CollapseCompleted(path string) error {
	lock, err := acquireLock(path)
	if err != nil {
		return err
	}
	defer lock.Release()

	_, lines, err := parseFile(path)
	if err != nil {
		return err
	}

	var kept []string
	var doneIDs []string
	i := 0
	for i < len(lines) {
		line := lines[i]
		m := taskLineRE.FindStringSubmatch(line)
		if m != nil && Status(m[1][0]) == StatusComplete {
			doneIDs = append(doneIDs, m[2])
			i++
			for i < len(lines) {
				next := lines[i]
				trimmed := strings.TrimSpace(next)
				isSub := strings.HasPrefix(next, "  ") || strings.HasPrefix(next, "\t")
				if trimmed == "" || isSub {
					i++
					continue
				}
				break
			}
			continue
		}
		kept = append(kept, line)
		i++
	}

	kept = dropEmptyHeadings(kept)

	if len(doneIDs) > 0 {
		comment := fmt.Sprintf("<!-- done: %s -->", strings.Join(doneIDs, ", "))
		kept = append([]string{comment}, kept...)
	}

	if err := atomicWriteLines(path, kept); err != nil {
		return err
	}
	invalidate(path)
	return nil
}

// dropEmptyHeadings removes any markdown heading line immediately followed
// (ignoring blank lines) by another heading or end-of-file — i.e. a section
// that lost every task to collapsing.
func dropEmptyHeadings(lines []string) []string {
	var out []string
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(strings.TrimSpace(line), "#") {
			out = append(out, line)
			continue
		}
		j := i + 1
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		if j >= len(lines) || strings.HasPrefix(strings.TrimSpace(lines[j]), "#") {
			continue // empty section, drop the heading
		}
		out = append(out, line)
	}
	return out
}

// atomicWriteLines writes lines to path via write-temp-then-rename so a
// crash mid-write never leaves a half-written board.
func atomicWriteLines(path string, lines []string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".board-*.tmp")
	if err != nil {
		return fmt.Errorf("board: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("board: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("board: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("board: renaming temp file: %w", err)
	}
	return nil
}
