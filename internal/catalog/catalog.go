package catalog

import "strings"

// Kind is the portal content type, used verbatim as the "type" query parameter.
type Kind string

const (
	KindLive   Kind = "itv"
	KindVOD    Kind = "vod"
	KindSeries Kind = "series"
)

// ParseKind accepts the portal names plus live/movies aliases.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "itv", "live":
		return KindLive, true
	case "vod", "movie", "movies":
		return KindVOD, true
	case "series":
		return KindSeries, true
	}
	return "", false
}

// Category is one entry of get_genres / get_categories.
type Category struct {
	ID       Text `json:"id"`
	Title    Text `json:"title"`
	Alias    Text `json:"alias,omitempty"`
	Number   Text `json:"number,omitempty"`
	Censored Text `json:"censored,omitempty"`
}

// Listing wraps a category list the way the portal does ({"js": [...]}), which is also how it is persisted.
type Listing struct {
	JS []Category `json:"js"`
}

// Item is one row of get_ordered_list / get_all_channels: a live channel, VOD title, series
// title or season. Fields a kind does not use stay empty. The zero Item is the placeholder that
// fills unfetched page slots.
type Item struct {
	ID     Text `json:"id"`
	Name   Text `json:"name"`
	Number Text `json:"number,omitempty"`
	Cmd    Text `json:"cmd,omitempty"`
	Logo   Text `json:"logo,omitempty"`

	// Live
	GenreID    Text `json:"tv_genre_id,omitempty"`
	Archive    Text `json:"tv_archive,omitempty"`
	ArchiveDur Text `json:"tv_archive_duration,omitempty"`

	// VOD / series
	CategoryID  Text    `json:"category_id,omitempty"`
	Screenshot  Text    `json:"screenshot_uri,omitempty"`
	Description Text    `json:"description,omitempty"`
	Actors      Text    `json:"actors,omitempty"`
	Director    Text    `json:"director,omitempty"`
	Year        Text    `json:"year,omitempty"`
	Genres      Text    `json:"genres_str,omitempty"`
	RatingIMDB  Text    `json:"rating_imdb,omitempty"`
	Duration    Text    `json:"time,omitempty"`
	IsSeries    Text    `json:"is_series,omitempty"`
	Episodes    IntList `json:"series,omitempty"` // season rows list their episode numbers
}

// IsPlaceholder reports whether the slot has not been filled by a page fetch.
func (it Item) IsPlaceholder() bool {
	return it.ID == "" && it.Name == "" && it.Cmd == ""
}

// DisplayName trims the quoted suffix some portals glue onto channel names (`Name" extra`).
func (it Item) DisplayName() string {
	name := string(it.Name)
	if i := strings.Index(name, "\" "); i > 0 {
		name = name[:i]
	}
	return name
}

// FilterByName keeps items whose display name contains q (case-insensitive). Empty q keeps all.
func FilterByName(items []Item, q string) []Item {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return items
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if strings.Contains(strings.ToLower(it.DisplayName()), q) {
			out = append(out, it)
		}
	}
	return out
}
