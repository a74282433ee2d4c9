// Package match ranks catalog item identifiers against partial or
// abbreviated user queries. It is a pure suggestion layer: results feed
// dashboard autocomplete and never affect which items a route transfers.
package match

import (
	"sort"
	"strings"
)

const (
	// DefaultLimit bounds result size when the caller passes limit <= 0.
	DefaultLimit = 10

	// DefaultThreshold is the minimum normalized similarity for the
	// fallback tier. 0.6 matches the threshold the remote-side tooling
	// was tuned against; anything lower surfaces too much noise on the
	// small catalogs this serves.
	DefaultThreshold = 0.6

	// delimiter separates identifier segments, e.g. "iron_block".
	delimiter = "_"
)

// Search returns up to limit catalog identifiers matching query, best first.
//
// Tiers, first match wins per identifier:
//  1. exact match
//  2. abbreviation match (segment-wise prefixes, e.g. "iron_b" -> "iron_block")
//  3. prefix match
//  4. substring or similarity >= DefaultThreshold
//
// Within a tier, shorter identifiers rank first, then catalog order.
// Any string is a legal query; malformed input degrades to fewer results.
// Pure function of its inputs, safe for concurrent use.
func Search(query string, catalog []string, limit int) []string {
	return SearchThreshold(query, catalog, limit, DefaultThreshold)
}

// SearchThreshold is Search with an explicit similarity threshold for the
// fuzzy tier. The host passes the catalog-configured value here.
func SearchThreshold(query string, catalog []string, limit int, threshold float64) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" || len(catalog) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	querySegments := strings.Split(query, delimiter)
	abbreviated := strings.Contains(query, delimiter)

	type candidate struct {
		identifier string
		index      int
	}
	tiers := make([][]candidate, 4)

	for i, identifier := range catalog {
		lower := strings.ToLower(identifier)
		cand := candidate{identifier: identifier, index: i}
		switch {
		case lower == query:
			tiers[0] = append(tiers[0], cand)
		case abbreviated && segmentsMatch(querySegments, strings.Split(lower, delimiter)):
			tiers[1] = append(tiers[1], cand)
		case strings.HasPrefix(lower, query):
			tiers[2] = append(tiers[2], cand)
		case strings.Contains(lower, query) || Similarity(query, lower) >= threshold:
			tiers[3] = append(tiers[3], cand)
		}
	}

	results := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, tier := range tiers {
		sort.SliceStable(tier, func(a, b int) bool {
			if la, lb := len(tier[a].identifier), len(tier[b].identifier); la != lb {
				return la < lb
			}
			return tier[a].index < tier[b].index
		})
		for _, cand := range tier {
			if len(results) >= limit {
				return results
			}
			if _, dup := seen[cand.identifier]; dup {
				continue
			}
			seen[cand.identifier] = struct{}{}
			results = append(results, cand.identifier)
		}
	}
	return results
}

// segmentsMatch reports whether every query segment is a prefix of the
// identifier segment in the same position. The query may have fewer
// segments than the identifier: "iron_b" matches "iron_block" and plain
// "iron" segments also match "iron_ore". Explicit segment comparison keeps
// the tie-break order auditable.
func segmentsMatch(query, identifier []string) bool {
	if len(query) > len(identifier) {
		return false
	}
	for i, segment := range query {
		if !strings.HasPrefix(identifier[i], segment) {
			return false
		}
	}
	return true
}
