package questionnaire

// LinkMap maps every link_id in the tree, nested groups included, to its question id.
func LinkMap(questions []Question) map[string]string {
	links := make(map[string]string)
	collectLinks(questions, links)
	return links
}

func collectLinks(questions []Question, links map[string]string) {
	for i := range questions {
		links[questions[i].LinkID] = questions[i].ID
		if len(questions[i].Questions) > 0 {
			collectLinks(questions[i].Questions, links)
		}
	}
}

// Responses indexes submitted results by question id. When a question id is
// submitted twice the later result wins.
type Responses struct {
	byID map[string]*SubmitResult
}

// NewResponses builds an index over results. The index points into results;
// callers must not modify the slice while the index is in use.
func NewResponses(results []SubmitResult) Responses {
	idx := make(map[string]*SubmitResult, len(results))
	for i := range results {
		idx[results[i].QuestionID] = &results[i]
	}
	return Responses{byID: idx}
}

// Get returns the result submitted for questionID, if any.
func (r Responses) Get(questionID string) (*SubmitResult, bool) {
	res, ok := r.byID[questionID]
	return res, ok
}

func (r Responses) Len() int { return len(r.byID) }

// Has reports whether questionID was answered.
func (r Responses) Has(questionID string) bool {
	_, ok := r.byID[questionID]
	return ok
}
