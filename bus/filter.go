package bus

import "github.com/exengine-go/exengine/notify"

// Filter selects which notifications a subscriber receives.
type Filter struct {
	kind     string
	category notify.Category
	hasKind  bool
	hasCat   bool
}

// NoFilter matches every notification.
func NoFilter() Filter { return Filter{} }

// ByKind matches notifications whose Kind equals kind exactly.
func ByKind(kind string) Filter { return Filter{kind: kind, hasKind: true} }

// ByCategory matches notifications whose Category equals category.
func ByCategory(category notify.Category) Filter { return Filter{category: category, hasCat: true} }

func (f Filter) match(n notify.Notification) bool {
	if f.hasKind && n.Kind() != f.kind {
		return false
	}
	if f.hasCat && n.Category() != f.category {
		return false
	}
	return true
}
