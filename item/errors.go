package item

import "fmt"

// UnknownItemTypeError is a user error: a DAG specification named an item
// type the registry does not know about.
type UnknownItemTypeError struct {
	ItemType string
}

func (e *UnknownItemTypeError) Error() string {
	return fmt.Sprintf("item: unknown item type %q", e.ItemType)
}
