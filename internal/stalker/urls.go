package stalker

import (
	"net/url"
	"strings"

	"github.com/snapetech/stalkerkit/internal/catalog"
)

// SortOrder is the sortby value for category lists.
type SortOrder string

const (
	SortNumber SortOrder = "number"
	SortName   SortOrder = "name"
	SortAdded  SortOrder = "added"
)

// ParseSortOrder maps user input to a SortOrder; unknown values sort by number.
func ParseSortOrder(s string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case SortName:
		return SortName
	case SortAdded:
		return SortAdded
	}
	return SortNumber
}

// CategoryListURL is the first-page get_ordered_list URL of a category.
func CategoryListURL(portal string, kind catalog.Kind, categoryID string, sort SortOrder) string {
	if sort == "" {
		sort = SortNumber
	}
	cat := url.QueryEscape(categoryID)
	if kind == catalog.KindLive {
		return portal + "?type=itv&action=get_ordered_list&genre=" + cat + "&sortby=" + string(sort) +
			"&p=1&JsHttpRequest=1-xml"
	}
	return portal + "?type=" + string(kind) + "&action=get_ordered_list&movie_id=0&season_id=0&episode_id=0&category=" + cat +
		"&fav=0&sortby=" + string(sort) + "&hd=0&not_ended=0&p=1&JsHttpRequest=1-xml"
}

// SeasonsURL lists the seasons of a series.
func SeasonsURL(portal, seriesID string) string {
	return portal + "?type=series&action=get_ordered_list&movie_id=" + url.QueryEscape(seriesID) +
		"&season_id=0&episode_id=0&JsHttpRequest=1-xml"
}

// SearchURL is a name search across a whole section.
func SearchURL(portal string, kind catalog.Kind, query string) string {
	return portal + "?type=" + string(kind) + "&action=get_ordered_list&search=" + url.QueryEscape(query) +
		"&genre=*&sortby=name&JsHttpRequest=1-xml"
}

// AllChannelsURL returns every live channel in one response.
func AllChannelsURL(portal string) string {
	return portal + "?type=itv&action=get_all_channels&sortby=name&JsHttpRequest=1-xml"
}

// pagedURL reports whether u is a list that pages with p=; search and all-channels do not.
func pagedURL(u string) bool {
	return !strings.Contains(u, "action=get_all_channels") && !strings.Contains(u, "search=")
}

func categoriesURL(portal string, kind catalog.Kind) string {
	if kind == catalog.KindLive {
		return portal + "?type=itv&action=get_genres&sortby=number&JsHttpRequest=1-xml"
	}
	return portal + "?type=" + string(kind) + "&action=get_categories&sortby=number&JsHttpRequest=1-xml"
}

// createLinkURL builds create_link. Live uses type=itv with zeroed flags; VOD and series
// episodes use type=vod, with series carrying the episode number.
func createLinkURL(portal string, kind catalog.Kind, cmd, episode string) string {
	c := url.QueryEscape(cmd)
	if kind == catalog.KindLive {
		return portal + "?type=itv&action=create_link&cmd=" + c +
			"&series=0&forced_storage=0&disable_ad=0&download=0&force_ch_link_check=0&JsHttpRequest=1-xml"
	}
	return portal + "?type=vod&action=create_link&cmd=" + c + "&series=" + url.QueryEscape(episode) +
		"&forced_storage=&disable_ad=0&download=0&force_ch_link_check=0&JsHttpRequest=1-xml"
}

func movieLookupURL(portal, streamID string) string {
	return portal + "?type=vod&action=get_ordered_list&movie_id=" + url.QueryEscape(streamID) +
		"&season_id=0&episode_id=0&category=1&fav=0&sortby=&hd=0&not_ended=0&p=1&JsHttpRequest=1-xml"
}

func shortEPGURL(portal, channelID string) string {
	return portal + "?type=itv&action=get_short_epg&ch_id=" + url.QueryEscape(channelID) + "&limit=10&size=10"
}

func accountInfoURL(portal string) string {
	return portal + "?type=account_info&action=get_main_info&JsHttpRequest=1-xml"
}

func sampleVODURL(portal string) string {
	return portal + "?type=vod&action=get_ordered_list&genre=*&JsHttpRequest=1-xml"
}
