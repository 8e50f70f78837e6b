package subtypes

import (
	"fmt"
	"sort"
)

const unknownSubTypeErrorTemplate = "unknown property sub-type %q"

// SubType is one selectable kind of space within a mixed-use property.
type SubType struct {
	ID    string
	Label string
	Icon  string
}

var mixedUseCatalog = []SubType{
	{ID: "residential", Label: "Residential Units", Icon: "🏠"},
	{ID: "retail", Label: "Retail Shops", Icon: "🛍️"},
	{ID: "office", Label: "Office Space", Icon: "🏢"},
	{ID: "restaurant", Label: "Restaurant / Cafe", Icon: "🍽️"},
	{ID: "showroom", Label: "Showroom", Icon: "🪟"},
	{ID: "warehouse", Label: "Warehouse", Icon: "📦"},
	{ID: "clinic", Label: "Clinic", Icon: "🏥"},
	{ID: "hotel", Label: "Hotel / Serviced Rooms", Icon: "🛏️"},
}

// UnknownSubTypeError reports an identifier absent from the catalog.
type UnknownSubTypeError struct {
	ID string
}

// Error names the unknown identifier.
func (failure UnknownSubTypeError) Error() string {
	return fmt.Sprintf(unknownSubTypeErrorTemplate, failure.ID)
}

// Catalog returns the mixed-use sub-types in display order.
func Catalog() []SubType {
	return append([]SubType{}, mixedUseCatalog...)
}

// Lookup returns the catalog entry for identifier.
func Lookup(identifier string) (SubType, bool) {
	for _, subType := range mixedUseCatalog {
		if subType.ID == identifier {
			return subType, true
		}
	}
	return SubType{}, false
}

// Selection is an immutable set of selected sub-type identifiers. The zero value is empty.
type Selection struct {
	members map[string]struct{}
}

// NewSelection builds a selection containing identifiers, ignoring duplicates.
func NewSelection(identifiers ...string) Selection {
	members := make(map[string]struct{}, len(identifiers))
	for _, identifier := range identifiers {
		members[identifier] = struct{}{}
	}
	return Selection{members: members}
}

// Toggle returns a new selection with identifier removed when present and added when absent.
// The receiver is left unchanged.
func (selection Selection) Toggle(identifier string) Selection {
	members := make(map[string]struct{}, len(selection.members)+1)
	for member := range selection.members {
		members[member] = struct{}{}
	}
	if _, present := members[identifier]; present {
		delete(members, identifier)
	} else {
		members[identifier] = struct{}{}
	}
	return Selection{members: members}
}

// Contains reports whether identifier is selected.
func (selection Selection) Contains(identifier string) bool {
	_, present := selection.members[identifier]
	return present
}

// Len returns the number of selected identifiers.
func (selection Selection) Len() int {
	return len(selection.members)
}

// IDs returns the selected identifiers sorted lexicographically.
func (selection Selection) IDs() []string {
	identifiers := make([]string, 0, len(selection.members))
	for member := range selection.members {
		identifiers = append(identifiers, member)
	}
	sort.Strings(identifiers)
	return identifiers
}

// Validate returns UnknownSubTypeError for the first selected identifier missing from catalog.
func (selection Selection) Validate(catalog []SubType) error {
	known := make(map[string]struct{}, len(catalog))
	for _, subType := range catalog {
		known[subType.ID] = struct{}{}
	}
	for _, identifier := range selection.IDs() {
		if _, found := known[identifier]; !found {
			return UnknownSubTypeError{ID: identifier}
		}
	}
	return nil
}
