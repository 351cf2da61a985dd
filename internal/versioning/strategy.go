// Package versioning classifies a Changelog into a BumpKind using
// declarative per-organization rule tables, never inheritance.
package versioning

import "bioingest/internal/model"

// Trigger matches one (change kind, category) pair.
type Trigger struct {
	Kind     model.ChangeKind
	Category model.ChangeCategory
}

// Strategy is a declarative bump-classification document: three rule
// lists, each naming the (change_kind, category) pairs that force a
// given bump magnitude. A changelog's bump kind is the highest
// magnitude triggered by any of its entries; an empty changelog, or one
// matching none of the three lists, yields BumpNone.
type Strategy struct {
	Name           string
	MajorTriggers  []Trigger
	MinorTriggers  []Trigger
	PatchTriggers  []Trigger
	CascadeOnMajor bool
	CascadeOnMinor bool
}

func (s Strategy) matches(triggers []Trigger, entry model.ChangeEntry) bool {
	for _, t := range triggers {
		if t.Kind == entry.Kind && t.Category == entry.Category {
			return true
		}
	}
	return false
}

// Classify applies the strategy's rule tables to a changelog and
// returns the bump kind: the first MAJOR match wins outright; absent
// that, the highest of MINOR/PATCH found wins; absent any match,
// BumpNone (an idempotent re-ingest with nothing to record).
func (s Strategy) Classify(changelog model.Changelog) model.BumpKind {
	if len(changelog) == 0 {
		return model.BumpNone
	}

	bump := model.BumpNone
	for _, entry := range changelog {
		if entry.Kind == model.ChangeInitial {
			return model.BumpInitial
		}
		if s.matches(s.MajorTriggers, entry) {
			return model.BumpMajor
		}
		if bump != model.BumpMinor && s.matches(s.MinorTriggers, entry) {
			bump = model.BumpMinor
		}
		if bump == model.BumpNone && s.matches(s.PatchTriggers, entry) {
			bump = model.BumpPatch
		}
	}
	return bump
}
