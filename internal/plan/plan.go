// Package plan parses the markdown task plan into a typed forest and selects
// the next actionable task. The plan file is hand-editable, so the forest is
// rebuilt from source on every read and never mutated in place; completing a
// task rewrites a single checkbox line in the original text.
package plan

import (
	"regexp"
	"strconv"
	"strings"
)

// Status is a task's checkbox state.
type Status string

// Task statuses, mapped from the checkbox markers.
const (
	StatusPending  Status = "pending"  // - [ ]
	StatusComplete Status = "complete" // - [x]
	StatusDeferred Status = "deferred" // - [~]
)

// Task is one node of the plan forest. The forest lives only for the duration
// of the call that parsed it.
type Task struct {
	ID       string
	Title    string
	Status   Status
	Trigger  string
	Children []*Task
}

// TriggerEvaluator decides whether a deferred task's trigger condition
// currently holds.
type TriggerEvaluator func(condition string) bool

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)
	taskLineRe = regexp.MustCompile(`^([ \t]*)- \[( |x|~)\] (.+)$`)
	triggerRe  = regexp.MustCompile("WHEN `([^`]+)`")
)

// tasksSection returns the half-open line range of the plan's task list:
// everything after the first "Tasks" heading up to the next heading. Both the
// parser and the completion rewrite scan the same range so the depth-first
// task ordering they derive always agrees.
func tasksSection(lines []string) (int, int) {
	start := -1
	for i, line := range lines {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if start < 0 {
			if strings.HasPrefix(m[2], "Tasks") {
				start = i + 1
			}
			continue
		}
		return start, i
	}
	if start < 0 {
		return 0, 0
	}
	return start, len(lines)
}

func indentWidth(indent string) int {
	// Tabs count as two spaces; the plan template indents nested tasks by two.
	return len(strings.ReplaceAll(indent, "\t", "  "))
}

func statusFromMarker(marker string) Status {
	switch marker {
	case "x":
		return StatusComplete
	case "~":
		return StatusDeferred
	default:
		return StatusPending
	}
}

// Parse builds the task forest from the plan markdown. Hierarchical ids
// (task-2.1) are assigned by depth-first sibling counting over the checkbox
// lines, so ids are deterministic for a given snapshot of the text.
func Parse(markdown string) []*Task {
	lines := strings.Split(markdown, "\n")
	start, end := tasksSection(lines)

	type frame struct {
		width int
		task  *Task
	}
	var roots []*Task
	var stack []frame

	for _, line := range lines[start:end] {
		m := taskLineRe.FindStringSubmatch(line)
		if m == nil {
			// Blank lines and free text between tasks are tolerated; the
			// section boundary is the next heading.
			continue
		}
		width := indentWidth(m[1])
		title := strings.TrimSpace(m[3])
		task := &Task{
			Title:  title,
			Status: statusFromMarker(m[2]),
		}
		if tm := triggerRe.FindStringSubmatch(title); tm != nil {
			task.Trigger = tm[1]
		}

		for len(stack) > 0 && stack[len(stack)-1].width >= width {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, task)
		} else {
			parent := stack[len(stack)-1].task
			parent.Children = append(parent.Children, task)
		}
		stack = append(stack, frame{width: width, task: task})
	}

	assignIDs(roots, "task-")
	return roots
}

func assignIDs(tasks []*Task, prefix string) {
	for i, t := range tasks {
		t.ID = prefix + strconv.Itoa(i+1)
		assignIDs(t.Children, t.ID+".")
	}
}

// CurrentGoal extracts the body of the plan's "Current Goal" section.
func CurrentGoal(markdown string) string {
	lines := strings.Split(markdown, "\n")
	start := -1
	for i, line := range lines {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if start < 0 {
			if strings.HasPrefix(m[2], "Current Goal") {
				start = i + 1
			}
			continue
		}
		return strings.TrimSpace(strings.Join(lines[start:i], "\n"))
	}
	if start < 0 {
		return ""
	}
	return strings.TrimSpace(strings.Join(lines[start:], "\n"))
}

// IsEmpty reports whether the forest holds no tasks at all.
func IsEmpty(tasks []*Task) bool {
	return len(tasks) == 0
}

// IsComplete reports whether every task in the forest is complete.
func IsComplete(tasks []*Task) bool {
	if len(tasks) == 0 {
		return false
	}
	return allComplete(tasks)
}

func allComplete(tasks []*Task) bool {
	for _, t := range tasks {
		if t.Status != StatusComplete {
			return false
		}
		if !allComplete(t.Children) {
			return false
		}
	}
	return true
}
