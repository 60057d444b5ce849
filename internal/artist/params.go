package artist

// SearchParams configures artist name search.
type SearchParams struct {
	Query string
	Limit int
}

// Validate normalizes search parameters.
func (p *SearchParams) Validate() {
	if p.Limit < 1 || p.Limit > 100 {
		p.Limit = 20
	}
}
