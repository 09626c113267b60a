package types

// UpdateResult is the structured outcome of one (target item, field) write
// attempt. Batch updates never fail as a whole on individual field errors;
// callers inspect the per-field results instead.
type UpdateResult struct {
	Success   bool   `json:"success"`
	IssueID   int64  `json:"issue_id"`
	FieldName string `json:"field_name"`
	Message   string `json:"message"`
	Value     any    `json:"attempted_value,omitempty"`
}

// Failed counts unsuccessful results.
func Failed(results []UpdateResult) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}
