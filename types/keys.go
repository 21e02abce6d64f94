package types

import "fmt"

// Notification channels. Observers subscribe to one or more of these keys
// and are informed whenever a cache layer triggers them.
const (
	// EntitiesKey fires on any entity mutation
	EntitiesKey = "!@ENTITY_TRIGGER@!"

	// SelectedKey fires when the selection or the selected entity changes
	SelectedKey = "!@ENTITY_SELECT_TRIGGER@!"

	// PaginatedKey fires when the paginated view may have changed
	PaginatedKey = "!@ENTITY_PAGINATE_ALL_TRIGGER@!"
)

// EntityKey returns the per-id channel for id
func EntityKey(id any) string {
	return fmt.Sprintf("%v%%&%s", id, EntitiesKey)
}
