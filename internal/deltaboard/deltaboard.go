package deltaboard

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"deltabot/internal/config"
	"deltabot/internal/logging"
	"deltabot/internal/model"
	"deltabot/internal/templates"
)

// dateFormat matches the "last updated" line in published boards.
const dateFormat = "1/2/2006 15:04:05 UTC"

// Store reads aggregated award counts from the ledger.
type Store interface {
	CountsWithin(ctx context.Context, start, end time.Time) ([]model.UserCount, error)
}

// DocumentClient is the slice of the platform client the publisher needs.
type DocumentClient interface {
	ReadDocument(ctx context.Context, path string) (string, error)
	WriteDocument(ctx context.Context, path, content string) error
}

// Publisher computes ranked deltaboards from the ledger at read time
// and renders them into the published document and the sidebar snippet.
type Publisher struct {
	store     Store
	docs      DocumentClient
	clock     clockwork.Clock
	cfg       config.DeltaboardConfig
	tmpl      config.TemplatesConfig
	boardPage string
	sidePage  string
	sidebarRe *regexp.Regexp
}

func New(store Store, docs DocumentClient, clock clockwork.Clock, cfg config.DeltaboardConfig,
	tmpl config.TemplatesConfig, forumCfg config.ForumConfig) (*Publisher, error) {
	re, err := regexp.Compile(cfg.SidebarMarker)
	if err != nil {
		return nil, fmt.Errorf("compile sidebar marker: %w", err)
	}
	if re.NumSubexp() != 1 {
		return nil, fmt.Errorf("sidebar marker must have exactly one capture group, has %d", re.NumSubexp())
	}
	return &Publisher{
		store:     store,
		docs:      docs,
		clock:     clock,
		cfg:       cfg,
		tmpl:      tmpl,
		boardPage: forumCfg.DeltaboardsPage,
		sidePage:  forumCfg.SidebarPage,
		sidebarRe: re,
	}, nil
}

// Current computes one deltaboard per window, each bounded relative to
// "now" at read time. A deltaboard is a pure function of ledger
// contents: identical per-user counts yield identical ranks regardless
// of insertion order.
func (p *Publisher) Current(ctx context.Context) ([]model.Deltaboard, error) {
	now := p.clock.Now().UTC()
	var boards []model.Deltaboard
	for _, w := range model.Windows() {
		start, end := windowBounds(w, now)
		counts, err := p.store.CountsWithin(ctx, start, end)
		if err != nil {
			return nil, fmt.Errorf("counts for %s window: %w", w, err)
		}
		boards = append(boards, model.Deltaboard{Window: w, Entries: rankEntries(counts)})
	}
	return boards, nil
}

// windowBounds returns the [start, end) range a window covers at now.
// The end bound sits one second past now because awarded_at has second
// resolution and an award stamped exactly at now must count.
func windowBounds(w model.Window, now time.Time) (time.Time, time.Time) {
	end := now.Add(time.Second)
	switch w {
	case model.Daily:
		return now.Add(-24 * time.Hour), end
	case model.Weekly:
		return now.Add(-7 * 24 * time.Hour), end
	case model.Monthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), end
	case model.Yearly:
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC), end
	default: // AllTime
		return time.Unix(0, 0), end
	}
}

// rankEntries assigns 1-based ranks by count descending, ties broken by
// username ascending.
func rankEntries(counts []model.UserCount) []model.DeltaboardEntry {
	sorted := make([]model.UserCount, len(counts))
	copy(sorted, counts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].Username < sorted[j].Username
	})
	entries := make([]model.DeltaboardEntry, 0, len(sorted))
	for i, uc := range sorted {
		entries = append(entries, model.DeltaboardEntry{Username: uc.Username, Count: uc.Count, Rank: i + 1})
	}
	return entries
}

// RenderDocument renders all window boards into the top-level document.
func (p *Publisher) RenderDocument(boards []model.Deltaboard) string {
	bindings := map[string]string{}
	tokens := map[model.Window]string{
		model.Daily:   templates.TokenDaily,
		model.Weekly:  templates.TokenWeekly,
		model.Monthly: templates.TokenMonthly,
		model.Yearly:  templates.TokenYearly,
		model.AllTime: templates.TokenAllTime,
	}
	for _, b := range boards {
		bindings[tokens[b.Window]] = p.renderBoard(b)
	}
	return templates.Render(p.tmpl.DeltaboardDocument, bindings)
}

func (p *Publisher) renderBoard(b model.Deltaboard) string {
	return templates.Render(p.tmpl.Deltaboard, map[string]string{
		templates.TokenWindow: b.Window.String(),
		templates.TokenRows:   p.renderRows(b.Entries),
		templates.TokenDate:   p.clock.Now().UTC().Format(dateFormat),
	})
}

func (p *Publisher) renderRows(entries []model.DeltaboardEntry) string {
	var sb strings.Builder
	for i, e := range entries {
		if i >= p.cfg.RanksToShow {
			break
		}
		sb.WriteString(templates.Render(p.tmpl.DeltaboardRow, map[string]string{
			templates.TokenRank:     strconv.Itoa(e.Rank),
			templates.TokenUsername: e.Username,
			templates.TokenCount:    strconv.Itoa(e.Count),
		}))
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RenderSidebar renders the condensed single-window variant.
func (p *Publisher) RenderSidebar(b model.Deltaboard) string {
	return templates.Render(p.tmpl.DeltaboardSidebar, map[string]string{
		templates.TokenRows: p.renderRows(b.Entries),
		templates.TokenDate: p.clock.Now().UTC().Format(dateFormat),
	})
}

// SpliceSidebar replaces only the marked inner region of the sidebar
// document; every byte outside the match is preserved.
func (p *Publisher) SpliceSidebar(doc, rendered string) (string, bool) {
	m := p.sidebarRe.FindStringSubmatchIndex(doc)
	if m == nil {
		return doc, false
	}
	return doc[:m[2]] + "\n" + rendered + "\n" + doc[m[3]:], true
}

// Publish recomputes every board, writes the deltaboards document, and
// patches the sidebar's monthly snippet if its marker is present.
func (p *Publisher) Publish(ctx context.Context) error {
	boards, err := p.Current(ctx)
	if err != nil {
		return err
	}
	if err := p.docs.WriteDocument(ctx, p.boardPage, p.RenderDocument(boards)); err != nil {
		return fmt.Errorf("write deltaboards document: %w", err)
	}

	var monthly model.Deltaboard
	for _, b := range boards {
		if b.Window == model.Monthly {
			monthly = b
		}
	}
	sidebar, err := p.docs.ReadDocument(ctx, p.sidePage)
	if err != nil {
		return fmt.Errorf("read sidebar: %w", err)
	}
	updated, ok := p.SpliceSidebar(sidebar, p.RenderSidebar(monthly))
	if !ok {
		logging.Warn("sidebar_marker_missing", map[string]any{"page": p.sidePage})
		return nil
	}
	if updated == sidebar {
		return nil
	}
	if err := p.docs.WriteDocument(ctx, p.sidePage, updated); err != nil {
		return fmt.Errorf("write sidebar: %w", err)
	}
	return nil
}
