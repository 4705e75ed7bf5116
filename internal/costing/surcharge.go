package costing

// DayTypeSurcharge is a catalog entry adding a flat amount once per line.
type DayTypeSurcharge struct {
	ID          int64  `json:"id"`
	Name        string `json:"name,omitempty"`
	FixedAmount int64  `json:"fixed_amount"`
}

// SurchargeLookup resolves day-type surcharges by id.
type SurchargeLookup interface {
	Surcharge(id int64) (DayTypeSurcharge, bool)
}

// SurchargeCatalog indexes day-type surcharges by id.
type SurchargeCatalog map[int64]DayTypeSurcharge

// NewSurchargeCatalog builds a catalog; later entries replace earlier ones with
// the same id.
func NewSurchargeCatalog(entries []DayTypeSurcharge) SurchargeCatalog {
	catalog := make(SurchargeCatalog, len(entries))
	for _, e := range entries {
		catalog[e.ID] = e
	}
	return catalog
}

// Surcharge implements SurchargeLookup.
func (c SurchargeCatalog) Surcharge(id int64) (DayTypeSurcharge, bool) {
	entry, ok := c[id]
	return entry, ok
}

// surchargeAmount returns the fixed amount for the optional day type, or 0
// when none is selected or the id is not in the catalog.
func surchargeAmount(lookup SurchargeLookup, id *int64) int64 {
	if id == nil || lookup == nil {
		return 0
	}
	entry, ok := lookup.Surcharge(*id)
	if !ok {
		return 0
	}
	return entry.FixedAmount
}
