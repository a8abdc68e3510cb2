package matching

import (
	"sort"
	"unicode/utf8"
)

// resolveAccountLinks keeps only transactions with exactly one distinct
// candidate account. Ambiguous matches are left alone.
func resolveAccountLinks(candidates []AccountCandidate) []Link {
	accounts := make(map[string]map[string]struct{})
	for _, c := range candidates {
		set, ok := accounts[c.TransactionID]
		if !ok {
			set = make(map[string]struct{}, 1)
			accounts[c.TransactionID] = set
		}
		set[c.AccountID] = struct{}{}
	}

	links := make([]Link, 0, len(accounts))
	for txID, set := range accounts {
		if len(set) != 1 {
			continue
		}
		for accountID := range set {
			links = append(links, Link{TransactionID: txID, TargetID: accountID})
		}
	}
	sortLinks(links)
	return links
}

// resolveMerchantLinks picks the most specific merchant per transaction:
// longest prefix, then the lexically smallest prefix, then the smallest ID.
func resolveMerchantLinks(candidates []MerchantCandidate) []Link {
	best := make(map[string]MerchantCandidate)
	for _, c := range candidates {
		if c.MatchPrefix == "" {
			continue
		}
		current, ok := best[c.TransactionID]
		if !ok || moreSpecific(c, current) {
			best[c.TransactionID] = c
		}
	}

	links := make([]Link, 0, len(best))
	for txID, c := range best {
		links = append(links, Link{TransactionID: txID, TargetID: c.MerchantID})
	}
	sortLinks(links)
	return links
}

func moreSpecific(a, b MerchantCandidate) bool {
	la, lb := utf8.RuneCountInString(a.MatchPrefix), utf8.RuneCountInString(b.MatchPrefix)
	if la != lb {
		return la > lb
	}
	if a.MatchPrefix != b.MatchPrefix {
		return a.MatchPrefix < b.MatchPrefix
	}
	return a.MerchantID < b.MerchantID
}

func sortLinks(links []Link) {
	sort.Slice(links, func(i, j int) bool { return links[i].TransactionID < links[j].TransactionID })
}
