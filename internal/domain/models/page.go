package models

const (
	DefaultPageSize = 100
	MaxPageSize     = 1000
)

type Page struct {
	Index int `json:"page_index" validate:"min=0"`
	Size  int `json:"page_size" validate:"min=1,max=1000"`
}

func (p Page) Offset() int { return p.Index * p.Size }

func (p Page) Limit() int { return p.Size }

func DefaultPage() Page {
	return Page{Index: 0, Size: DefaultPageSize}
}
