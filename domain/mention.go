package domain

import "regexp"

var mentionPattern = regexp.MustCompile(`@(\w+)`)

// ExtractMentions scans text for @username tokens and returns the candidate
// usernames in order of first appearance, without duplicates. It does not
// check that the usernames exist or belong to any group; that is the
// notification fan-out's job.
//
// A mention glued to punctuation ("@alice,") captures only the word-character
// run. An email-like token ("bob@campus.edu") is not special-cased: the rule
// above still applies and "campus" becomes a candidate.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var mentions []string
	for _, m := range matches {
		username := m[1]
		if _, ok := seen[username]; ok {
			continue
		}
		seen[username] = struct{}{}
		mentions = append(mentions, username)
	}
	return mentions
}
