package plan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrTaskNotFound reports a completion request for an id the plan does not
// contain. This is a caller error, never silently ignored.
var ErrTaskNotFound = errors.New("task not found")

// MarkComplete returns the plan markdown with exactly the checkbox line of the
// identified task flipped to [x]. The rest of the document, including
// formatting and free text, is preserved byte for byte. Completing an already
// complete task is a no-op, so the rewrite is idempotent.
func MarkComplete(markdown, taskID string) (string, error) {
	lines := strings.Split(markdown, "\n")
	start, end := tasksSection(lines)

	// Re-derive the same depth-first id assignment the parser uses, walking
	// the physical checkbox lines in document order.
	type frame struct {
		width  int
		count  int
		prefix string
	}
	stack := []frame{{width: -1, prefix: "task-"}}

	for i := start; i < end; i++ {
		m := taskLineRe.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		width := indentWidth(m[1])
		for len(stack) > 1 && stack[len(stack)-1].width >= width {
			stack = stack[:len(stack)-1]
		}
		top := &stack[len(stack)-1]
		top.count++
		id := top.prefix + strconv.Itoa(top.count)
		stack = append(stack, frame{width: width, prefix: id + "."})

		if id != taskID {
			continue
		}
		if m[2] != "x" {
			marker := "- [" + m[2] + "]"
			lines[i] = strings.Replace(lines[i], marker, "- [x]", 1)
		}
		return strings.Join(lines, "\n"), nil
	}

	return "", fmt.Errorf("task %s: %w", taskID, ErrTaskNotFound)
}
