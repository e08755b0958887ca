package catalog

// AssessmentRecord is a single catalog entry. Records are immutable after
// load; the vector store holds the only owning references.
type AssessmentRecord struct {
	ID              string
	Name            string
	DurationMinutes int
	TestType        string
	Adaptive        bool
	RemoteTesting   bool
	URL             string
	Description     string
}

// Records is an ordered collection of catalog entries. Order is the catalog
// source order and is used for deterministic ranking tie-breaks.
type Records []*AssessmentRecord

func (r Records) Len() int { return len(r) }

// IDs returns the record identifiers in catalog order.
func (r Records) IDs() []string {
	ids := make([]string, 0, len(r))
	for _, rec := range r {
		ids = append(ids, rec.ID)
	}
	return ids
}

// Descriptions returns the embedding source text for each record, in catalog
// order.
func (r Records) Descriptions() []string {
	texts := make([]string, 0, len(r))
	for _, rec := range r {
		texts = append(texts, rec.Description)
	}
	return texts
}
