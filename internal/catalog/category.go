package catalog

import "github.com/alorle/iptv-hub/internal/channel"

// Category is a group label with its channels in directory order.
type Category struct {
	Name     string            `json:"name"`
	Channels []channel.Channel `json:"channels"`
}

// ByCategory groups the directory by channel group. Channels without a group
// land in UndefinedGroup. Categories are ordered by first appearance.
func ByCategory(d *Directory) []Category {
	index := make(map[string]int)
	var categories []Category

	for _, ch := range d.Channels() {
		label := categoryLabel(ch)
		i, ok := index[label]
		if !ok {
			i = len(categories)
			index[label] = i
			categories = append(categories, Category{Name: label})
		}
		categories[i].Channels = append(categories[i].Channels, ch)
	}

	if categories == nil {
		return []Category{}
	}
	return categories
}
