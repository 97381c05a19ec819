package domain

// Classified copies the parser-owned fields of p into a ClassifiedTransaction
// so that the model only has to contribute classification fields.
func (p ParsedTransaction) Classified() ClassifiedTransaction {
	c := ClassifiedTransaction{
		Date:        p.Date,
		Description: p.Description,
		Type:        p.Direction,
		ExternalID:  p.ExternalID,
		Reference:   p.Reference,
		Balance:     p.Balance,
	}
	if p.Amount != nil {
		c.Amount = *p.Amount
	}
	return c
}

// Flag converts a boolean into the 0/1 integer used by the classification schema.
func Flag(b bool) int {
	if b {
		return 1
	}
	return 0
}
