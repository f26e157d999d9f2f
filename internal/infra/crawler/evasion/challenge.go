// Package evasion holds the anti-bot behaviour shared by every browser
// scraper: challenge detection, human pacing, proxy setup and retries.
package evasion

import "strings"

type Verdict int

const (
	Clear Verdict = iota
	Challenge
	Blocked
)

func (v Verdict) String() string {
	switch v {
	case Clear:
		return "clear"
	case Challenge:
		return "challenge"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// ChallengeDetector classifies a page from its title and markup. Matching
// is case-insensitive and block markers win over challenge markers.
type ChallengeDetector struct {
	challenge []string
	block     []string
}

func NewChallengeDetector(challengeMarkers, blockMarkers []string) *ChallengeDetector {
	return &ChallengeDetector{
		challenge: lowerAll(challengeMarkers),
		block:     lowerAll(blockMarkers),
	}
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Classify returns the verdict and the marker that triggered it.
func (d *ChallengeDetector) Classify(title, html string) (Verdict, string) {
	title = strings.ToLower(title)
	html = strings.ToLower(html)

	if m := firstMatch(d.block, title, html); m != "" {
		return Blocked, m
	}
	if m := firstMatch(d.challenge, title, html); m != "" {
		return Challenge, m
	}
	return Clear, ""
}

func firstMatch(markers []string, title, html string) string {
	for _, m := range markers {
		if strings.Contains(title, m) || strings.Contains(html, m) {
			return m
		}
	}
	return ""
}
