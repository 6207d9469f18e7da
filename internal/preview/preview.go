// Package preview renders the effect of a diff for display. Rendering replays
// the diff on a copy of the canonical snapshot with the same semantics as
// apply and never writes anything.
package preview

import (
	"fmt"
	"sort"
	"strings"

	"alcyxob/coaching-platform/internal/domain"
	"alcyxob/coaching-platform/internal/plandiff"
)

// Item kinds.
const (
	ItemChanged = "changed"
	ItemRemoved = "removed"
	ItemWarning = "warning"
)

// Item is one line of a week's preview.
type Item struct {
	Kind      string `json:"kind"`
	SessionID string `json:"sessionId,omitempty"`
	Ordinal   int    `json:"ordinal"`
	Text      string `json:"text"`
}

// WeekView summarizes one affected week.
type WeekView struct {
	WeekIndex          int    `json:"weekIndex"`
	BeforeTotalMinutes int    `json:"beforeTotalMinutes"`
	AfterTotalMinutes  int    `json:"afterTotalMinutes"`
	Items              []Item `json:"items"`
}

// DiffViewModel is the rendered preview. Warnings lists ops that could not be
// placed in a week (unknown sessions); week-level warnings also appear as
// items of their week.
type DiffViewModel struct {
	Summary  string     `json:"summary"`
	Weeks    []WeekView `json:"weeks"`
	Warnings []string   `json:"warnings,omitempty"`
}

// Render previews d against the snapshot.
func Render(snap plandiff.Snapshot, d plandiff.Diff) DiffViewModel {
	return RenderState(snap.State(), d)
}

// RenderState previews d against s. s is not modified.
func RenderState(s *plandiff.PlanState, d plandiff.Diff) DiffViewModel {
	after := s.Clone()
	res := plandiff.Replay(after, d)

	weeks := map[int]*WeekView{}
	view := func(idx int) *WeekView {
		if w, ok := weeks[idx]; ok {
			return w
		}
		w := &WeekView{WeekIndex: idx, BeforeTotalMinutes: s.WeekMinutes(idx), AfterTotalMinutes: after.WeekMinutes(idx), Items: []Item{}}
		weeks[idx] = w
		return w
	}

	var vm DiffViewModel
	changed := 0
	for _, id := range res.Changed {
		old, _ := s.Session(id)
		cur, ok := after.Session(id)
		if !ok {
			continue // removed later in the diff
		}
		line := changeLine(old, cur)
		if line == "" {
			continue
		}
		changed++
		w := view(old.WeekIndex)
		w.Items = append(w.Items, Item{Kind: ItemChanged, SessionID: id, Ordinal: old.Ordinal, Text: line})
	}
	for _, id := range res.Removed {
		old, _ := s.Session(id)
		if old == nil {
			continue
		}
		w := view(old.WeekIndex)
		w.Items = append(w.Items, Item{Kind: ItemRemoved, SessionID: id, Ordinal: old.Ordinal, Text: label(old) + ": removed"})
	}
	for _, sk := range res.Skips {
		text := warningLine(sk)
		if old, ok := s.Session(plandiff.SessionRef(sk.Op)); ok {
			w := view(old.WeekIndex)
			w.Items = append(w.Items, Item{Kind: ItemWarning, SessionID: old.ID, Ordinal: old.Ordinal, Text: text})
			continue
		}
		if idx, ok := plandiff.WeekRef(sk.Op); ok {
			if _, exists := s.Week(idx); exists {
				w := view(idx)
				w.Items = append(w.Items, Item{Kind: ItemWarning, Ordinal: -1, Text: text})
				continue
			}
		}
		vm.Warnings = append(vm.Warnings, text)
	}

	// Weeks whose volume moved without a renderable item still get a row.
	for _, w := range after.Weeks {
		if s.WeekMinutes(w.WeekIndex) != after.WeekMinutes(w.WeekIndex) {
			view(w.WeekIndex)
		}
	}

	vm.Weeks = make([]WeekView, 0, len(weeks))
	for _, w := range weeks {
		sort.SliceStable(w.Items, func(i, j int) bool { return w.Items[i].Ordinal < w.Items[j].Ordinal })
		vm.Weeks = append(vm.Weeks, *w)
	}
	sort.Slice(vm.Weeks, func(i, j int) bool { return vm.Weeks[i].WeekIndex < vm.Weeks[j].WeekIndex })
	vm.Summary = summary(vm, changed, len(res.Removed), len(res.Skips))
	return vm
}

func label(s *domain.Session) string {
	return s.DayOfWeek.String()[:3] + " " + s.Discipline
}

// changeLine renders e.g. "Tue Run: Tempo → Endurance; 45 min → 34 min".
func changeLine(old, cur *domain.Session) string {
	var parts []string
	if old.Discipline != cur.Discipline {
		parts = append(parts, fmt.Sprintf("%s → %s", old.Discipline, cur.Discipline))
	}
	if old.Type != cur.Type {
		parts = append(parts, fmt.Sprintf("%s → %s", old.Type, cur.Type))
	}
	if old.DurationMinutes != cur.DurationMinutes {
		parts = append(parts, fmt.Sprintf("%d min → %d min", old.DurationMinutes, cur.DurationMinutes))
	}
	switch {
	case old.Notes != nil && cur.Notes == nil:
		parts = append(parts, "notes cleared")
	case old.NotesText() != cur.NotesText():
		parts = append(parts, "notes updated")
	}
	if len(parts) == 0 {
		return ""
	}
	return label(old) + ": " + strings.Join(parts, "; ")
}

func warningLine(sk plandiff.Skip) string {
	switch sk.Reason {
	case plandiff.SkipUnknownSession:
		return fmt.Sprintf("Unknown op #%d %s: session %s not found", sk.Index+1, sk.Op.Type(), sk.Ref)
	case plandiff.SkipUnknownWeek:
		return fmt.Sprintf("Unknown op #%d %s: %s not found", sk.Index+1, sk.Op.Type(), sk.Ref)
	default:
		return fmt.Sprintf("Blocked op #%d %s: %s (%s)", sk.Index+1, sk.Op.Type(), sk.Reason, sk.Ref)
	}
}

func summary(vm DiffViewModel, changed, removed, warnings int) string {
	before, after := 0, 0
	for _, w := range vm.Weeks {
		before += w.BeforeTotalMinutes
		after += w.AfterTotalMinutes
	}
	parts := []string{fmt.Sprintf("%d session(s) changed across %d week(s)", changed, len(vm.Weeks))}
	if removed > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", removed))
	}
	parts = append(parts, fmt.Sprintf("volume %+d min", after-before))
	if warnings > 0 {
		parts = append(parts, fmt.Sprintf("%d warning(s)", warnings))
	}
	return strings.Join(parts, "; ")
}
