package schema

import "fmt"

// StatementDescriptor pairs a category with the text of a statement against it.
// Identical text against different categories are different descriptors.
type StatementDescriptor struct {
	Category *Category
	Text     string
}

// DescriptorKey is the comparable identity of a StatementDescriptor
type DescriptorKey struct {
	Category string
	Payload  string
	Text     string
}

// NewStatementDescriptor creates a new descriptor
func NewStatementDescriptor(category *Category, text string) StatementDescriptor {
	return StatementDescriptor{Category: category, Text: text}
}

// Key returns the identity of the descriptor, usable as a map key
func (d StatementDescriptor) Key() DescriptorKey {
	if d.Category == nil {
		return DescriptorKey{Text: d.Text}
	}
	return DescriptorKey{Category: d.Category.Name(), Payload: d.Category.Payload(), Text: d.Text}
}

// Equal reports whether both descriptors have the same category and text
func (d StatementDescriptor) Equal(other StatementDescriptor) bool {
	return d.Key() == other.Key()
}

func (d StatementDescriptor) String() string {
	if d.Category == nil {
		return fmt.Sprintf("<nil>: %s", d.Text)
	}
	return fmt.Sprintf("%s: %s", d.Category, d.Text)
}
