package domain

import "slices"

// TemplateMapping associates a pattern SessionID with the SessionID of the
// settings section that configures sessions admitted through it.
type TemplateMapping struct {
	Pattern    SessionID `json:"pattern"`
	TemplateID SessionID `json:"template_id"`
}

// TemplateTable groups template mappings by the address they serve.
//
// A TemplateTable is built once through a TableBuilder and is read-only
// afterwards, so any number of goroutines may read it without locking.
type TemplateTable struct {
	order   []ListeningAddress
	entries map[ListeningAddress][]TemplateMapping
}

// Addresses returns the populated addresses in first-seen order.
func (t *TemplateTable) Addresses() []ListeningAddress {
	if t == nil {
		return nil
	}
	return slices.Clone(t.order)
}

// Templates returns a copy of the mappings for addr in declaration order.
func (t *TemplateTable) Templates(addr ListeningAddress) []TemplateMapping {
	if t == nil {
		return nil
	}
	return slices.Clone(t.entries[addr])
}

// Len returns the number of populated addresses.
func (t *TemplateTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// IsEmpty reports whether the table holds no templates.
func (t *TemplateTable) IsEmpty() bool {
	return t.Len() == 0
}

// TableBuilder accumulates mappings for a TemplateTable.
// It is not safe for concurrent use and must not be used after Build.
type TableBuilder struct {
	table *TemplateTable
}

// NewTableBuilder creates an empty builder.
func NewTableBuilder() *TableBuilder {
	return &TableBuilder{
		table: &TemplateTable{
			entries: make(map[ListeningAddress][]TemplateMapping),
		},
	}
}

// Add appends m to the list for addr, creating the list on first use.
func (b *TableBuilder) Add(addr ListeningAddress, m TemplateMapping) {
	if _, ok := b.table.entries[addr]; !ok {
		b.table.order = append(b.table.order, addr)
	}
	b.table.entries[addr] = append(b.table.entries[addr], m)
}

// Build returns the finished table and detaches it from the builder.
func (b *TableBuilder) Build() *TemplateTable {
	t := b.table
	b.table = nil
	return t
}
