package workflow

// Dependencies returns every task id t depends on: tasks named by a `use`
// binding, by its for_each iterable when that's a binding expression, and
// by any explicit flow edge targeting t. Used by the DAG scheduler (C9) to
// build the ready set without duplicating the reference-extraction logic
// Validate already has.
func (d *Document) Dependencies(t *Task) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, expr := range t.Use {
		for _, src := range referencedTasks(expr) {
			add(src)
		}
	}
	if expr, ok := t.UseBindingItemsExpr(); ok {
		for _, src := range referencedTasks(expr) {
			add(src)
		}
	}
	if expr, ok := t.DecomposeSourceExpr(); ok {
		for _, src := range referencedTasks(expr) {
			add(src)
		}
	}
	for _, fl := range d.Flows {
		for _, tg := range fl.Target {
			if tg != t.ID {
				continue
			}
			for _, s := range fl.Source {
				add(s)
			}
		}
	}
	return out
}

// AllDependencies returns a map task id -> its Dependencies(), computed once
// for every task in the document.
func (d *Document) AllDependencies() map[string][]string {
	out := make(map[string][]string, len(d.Tasks))
	for i := range d.Tasks {
		t := &d.Tasks[i]
		out[t.ID] = d.Dependencies(t)
	}
	return out
}

// OutputTask returns the task marked IsOutput, if any.
func (d *Document) OutputTask() (*Task, bool) {
	for i := range d.Tasks {
		if d.Tasks[i].IsOutput {
			return &d.Tasks[i], true
		}
	}
	return nil, false
}
