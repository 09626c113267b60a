package remote

import (
	"encoding/json"

	"github.com/pivotstack/worktrack/pkg/types"
)

// ItemPage normalizes the two payload shapes the list endpoints produce: a
// bare JSON array of items, or an object carrying work_items plus an
// optional pagination block. Callers always see items and counters.
type ItemPage struct {
	Items    []types.Item
	Total    int
	PageNum  int
	PageSize int
}

func (p *ItemPage) UnmarshalJSON(raw []byte) error {
	var list []types.Item
	if err := json.Unmarshal(raw, &list); err == nil {
		p.Items = list
		p.Total = len(list)
		return nil
	}

	var obj struct {
		WorkItems  []types.Item `json:"work_items"`
		Total      int          `json:"total"`
		Pagination *struct {
			Total    int `json:"total"`
			PageNum  int `json:"page_num"`
			PageSize int `json:"page_size"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	p.Items = obj.WorkItems
	if obj.Pagination != nil {
		p.Total = obj.Pagination.Total
		p.PageNum = obj.Pagination.PageNum
		p.PageSize = obj.Pagination.PageSize
	} else {
		p.Total = obj.Total
	}
	if p.Total == 0 {
		p.Total = len(p.Items)
	}
	return nil
}

// Normalize fills in the requested page counters when the remote omitted
// them and converts to the public envelope.
func (p *ItemPage) Normalize(pageNum, pageSize int) types.Page {
	out := types.Page{
		Items:    p.Items,
		Total:    p.Total,
		PageNum:  p.PageNum,
		PageSize: p.PageSize,
	}
	if out.Items == nil {
		out.Items = []types.Item{}
	}
	if out.Total == 0 {
		out.Total = len(out.Items)
	}
	if out.PageNum == 0 {
		out.PageNum = pageNum
	}
	if out.PageSize == 0 {
		out.PageSize = pageSize
	}
	return out
}
