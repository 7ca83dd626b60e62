package calculations

import (
	"sort"
	"strings"
)

// Matches reports whether t satisfies every non-empty criterion of the filter
func (f TemplateFilter) Matches(t *Template) bool {
	if len(f.Types) > 0 && !containsCategory(f.Types, t.Category) {
		return false
	}
	if len(f.TargetProfessions) > 0 && !intersects(f.TargetProfessions, t.TargetProfessions) {
		return false
	}
	if term := strings.ToLower(strings.TrimSpace(f.SearchTerm)); term != "" {
		haystack := []string{t.Name, t.Description}
		haystack = append(haystack, t.Tags...)
		found := false
		for _, h := range haystack {
			if strings.Contains(strings.ToLower(h), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FilterTemplates returns the matching templates ordered by name
func FilterTemplates(templates []*Template, f TemplateFilter) []*Template {
	out := []*Template{}
	for _, t := range templates {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RankRecommendations orders candidate templates for a user working on reference
// (may be nil) inside a project whose saved results used the templates in usedIDs.
// The reference template itself is excluded.
func RankRecommendations(candidates []*Template, reference *Template, usedIDs map[string]bool, limit int) []*Template {
	type scored struct {
		t            *Template
		sameCategory bool
		usedBefore   bool
	}

	var pool []scored
	for _, t := range candidates {
		if reference != nil && t.ID == reference.ID {
			continue
		}
		pool = append(pool, scored{
			t:            t,
			sameCategory: reference != nil && t.Category == reference.Category,
			usedBefore:   usedIDs[t.ID],
		})
	}

	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if a.sameCategory != b.sameCategory {
			return a.sameCategory
		}
		if a.usedBefore != b.usedBefore {
			return a.usedBefore
		}
		if a.t.UsageCount != b.t.UsageCount {
			return a.t.UsageCount > b.t.UsageCount
		}
		if a.t.AverageRating != b.t.AverageRating {
			return a.t.AverageRating > b.t.AverageRating
		}
		return a.t.Name < b.t.Name
	})

	if limit > 0 && len(pool) > limit {
		pool = pool[:limit]
	}
	out := make([]*Template, len(pool))
	for i, s := range pool {
		out[i] = s.t
	}
	return out
}

func containsCategory(list []Category, c Category) bool {
	for _, item := range list {
		if strings.EqualFold(string(item), string(c)) {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.EqualFold(x, y) {
				return true
			}
		}
	}
	return false
}
