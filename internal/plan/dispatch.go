package plan

// NextActionable walks the forest depth-first, left to right, and returns the
// first task that can be worked on now, or nil when nothing is actionable.
//
// Complete subtrees are skipped entirely. Deferred tasks are skipped unless an
// evaluator is supplied and reports their trigger as met; no evaluator or no
// trigger means the task stays deferred. Tasks with children are never
// dispatched themselves, only their actionable descendants.
func NextActionable(tasks []*Task, eval TriggerEvaluator) *Task {
	for _, t := range tasks {
		if t.Status == StatusComplete {
			continue
		}
		if t.Status == StatusDeferred {
			if eval == nil || t.Trigger == "" || !eval(t.Trigger) {
				continue
			}
		}
		if len(t.Children) > 0 {
			if c := NextActionable(t.Children, eval); c != nil {
				return c
			}
			continue
		}
		return t
	}
	return nil
}

// Find returns the task with the given id, searching depth-first.
func Find(tasks []*Task, id string) *Task {
	for _, t := range tasks {
		if t.ID == id {
			return t
		}
		if c := Find(t.Children, id); c != nil {
			return c
		}
	}
	return nil
}
