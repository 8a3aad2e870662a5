package questionnaire

// PruneResult is the per-submission view of a definition after disabled
// questions have been removed. The input definition and results are never
// modified; everything here is freshly allocated.
type PruneResult struct {
	// Questions is the pruned copy of the definition tree.
	Questions []Question
	// Results is the submitted result list without answers to disabled questions.
	Results []SubmitResult
	// Responses indexes Results by question id.
	Responses Responses

	disabled map[string]bool
}

// IsActive reports whether questionID survived pruning.
func (p *PruneResult) IsActive(questionID string) bool {
	return !p.disabled[questionID]
}

// Disabled returns the ids removed by pruning.
func (p *PruneResult) Disabled() []string {
	ids := make([]string, 0, len(p.disabled))
	for id := range p.disabled {
		ids = append(ids, id)
	}
	return ids
}

// activeAnswers hides answers to questions that have already been disabled.
type activeAnswers struct {
	responses Responses
	disabled  map[string]bool
}

func (a activeAnswers) Get(questionID string) (*SubmitResult, bool) {
	if a.disabled[questionID] {
		return nil, false
	}
	return a.responses.Get(questionID)
}

// Prune walks the definition top-down and drops every question whose
// enable_when evaluates false, together with its whole subtree. Conditions
// only see answers to questions that are still enabled, and the walk repeats
// until no further question is disabled, so pruning an already pruned
// submission is a no-op.
func Prune(questions []Question, results []SubmitResult) *PruneResult {
	links := LinkMap(questions)
	view := activeAnswers{responses: NewResponses(results), disabled: make(map[string]bool)}

	for {
		before := len(view.disabled)
		markDisabled(questions, view, links)
		if len(view.disabled) == before {
			break
		}
	}

	kept := filterResults(results, view.disabled)
	return &PruneResult{
		Questions: copyEnabled(questions, view.disabled),
		Results:   kept,
		Responses: NewResponses(kept),
		disabled:  view.disabled,
	}
}

func markDisabled(questions []Question, view activeAnswers, links map[string]string) {
	for i := range questions {
		q := &questions[i]
		if view.disabled[q.ID] {
			continue
		}
		if len(q.EnableWhen) > 0 && !IsEnabled(q, view, links) {
			disableSubtree(q, view.disabled, links)
			continue
		}
		if q.IsGroup() {
			markDisabled(q.Questions, view, links)
		}
	}
}

// disableSubtree disables q and every descendant, whatever their own
// conditions say. Their link ids are dropped so later conditions that point
// at them are unresolvable, the same as on an already pruned tree.
func disableSubtree(q *Question, disabled map[string]bool, links map[string]string) {
	disabled[q.ID] = true
	delete(links, q.LinkID)
	for i := range q.Questions {
		disableSubtree(&q.Questions[i], disabled, links)
	}
}

func copyEnabled(questions []Question, disabled map[string]bool) []Question {
	out := make([]Question, 0, len(questions))
	for _, q := range questions {
		if disabled[q.ID] {
			continue
		}
		if len(q.Questions) > 0 {
			q.Questions = copyEnabled(q.Questions, disabled)
		}
		out = append(out, q)
	}
	return out
}

func filterResults(results []SubmitResult, disabled map[string]bool) []SubmitResult {
	out := make([]SubmitResult, 0, len(results))
	for _, r := range results {
		if disabled[r.QuestionID] {
			continue
		}
		if len(r.SubResults) > 0 {
			reps := make([][]SubmitResult, 0, len(r.SubResults))
			for _, rep := range r.SubResults {
				reps = append(reps, filterResults(rep, disabled))
			}
			r.SubResults = reps
		}
		out = append(out, r)
	}
	return out
}
