package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/snapetech/stalkerkit/internal/catalog"
	"github.com/snapetech/stalkerkit/internal/provider"
	"github.com/snapetech/stalkerkit/internal/refresh"
	"github.com/snapetech/stalkerkit/internal/stalker"
	"github.com/snapetech/stalkerkit/internal/store"
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func connections(s stalker.Session) string {
	if s.MaxConnections == "" {
		return "-"
	}
	c := s.ActiveConnections + "/" + s.MaxConnections
	if s.Saturated() {
		c += " (full)"
	}
	return c
}

func expiry(s stalker.Session) string {
	e := s.ExpiryInfo()
	switch e.Kind {
	case stalker.ExpiryDate:
		return e.At.Format("2006-01-02")
	case stalker.ExpiryUnlimited:
		return "Unlimited"
	}
	if s.Expiry == "" {
		return "-"
	}
	return s.Expiry
}

func printSessions(w io.Writer, sessions []stalker.Session, now time.Time) {
	tw := table(w)
	fmt.Fprintln(tw, "#\tDOMAIN\tMAC\tALIAS\tSTATUS\tEXPIRES\tCONN\tVERSION")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Index, s.Domain, s.MAC, s.Alias, s.StatusLabel(now), expiry(s), connections(s), s.Version)
	}
	_ = tw.Flush()
}

func entrySessions(entries []store.Entry) []stalker.Session {
	out := make([]stalker.Session, len(entries))
	for i, e := range entries {
		out[i] = e.Session
	}
	return out
}

func printSummary(w io.Writer, sum refresh.Summary) {
	parts := make([]string, 0, len(sum.Counts))
	for _, l := range refresh.SortedLabels(sum.Counts) {
		parts = append(parts, fmt.Sprintf("%s %d", l, sum.Counts[l]))
	}
	fmt.Fprintf(w, "%d checked in %s: %s (%d stopped early)\n",
		sum.Total, sum.Took.Round(time.Millisecond), strings.Join(parts, ", "), sum.Errors)
}

func printCategories(w io.Writer, cats stalker.Categories) {
	tw := table(w)
	fmt.Fprintln(tw, "TYPE\tID\tTITLE")
	for _, sec := range []struct {
		kind catalog.Kind
		list []catalog.Category
	}{{catalog.KindLive, cats.Live}, {catalog.KindVOD, cats.VOD}, {catalog.KindSeries, cats.Series}} {
		for _, c := range sec.list {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", sec.kind, c.ID, c.Title)
		}
	}
	_ = tw.Flush()
}

func printItems(w io.Writer, items []catalog.Item) {
	tw := table(w)
	fmt.Fprintln(tw, "ID\tNAME\tCMD")
	for _, it := range items {
		if it.IsPlaceholder() {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", it.ID, it.DisplayName(), it.Cmd)
	}
	_ = tw.Flush()
}

func printEPG(w io.Writer, epg map[string][]stalker.EPGEntry) {
	ids := make([]string, 0, len(epg))
	for id := range epg {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	tw := table(w)
	fmt.Fprintln(tw, "CHANNEL\tSTART\tSTOP\tTITLE")
	for _, id := range ids {
		for _, e := range epg[id] {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, e.Start, e.Stop, e.Name)
		}
	}
	_ = tw.Flush()
}

func printProbe(w io.Writer, results []provider.Result) {
	tw := table(w)
	fmt.Fprintln(tw, "URL\tSTATUS\tHTTP\tLATENCY")
	for _, r := range results {
		code := "-"
		if r.StatusCode != 0 {
			code = fmt.Sprint(r.StatusCode)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\n", r.URL, r.Status, code, r.LatencyMs)
	}
	_ = tw.Flush()
}
