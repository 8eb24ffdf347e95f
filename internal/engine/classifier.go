package engine

import (
	"regexp"

	"github.com/qiuqing005/maoxian/internal/models"
)

// Completion detection is a conservative heuristic over the narrative text.
// The three categories are checked in priority order and the first category
// with a match wins; no match means the story continues. Phrases are chosen
// to be explicit endings, not words that appear in ordinary narration;
// English phrases are anchored on word boundaries so "the end" never fires
// inside "the endless corridor".
var (
	storyEndPattern = regexp.MustCompile(`(?i)故事结束|全剧终|剧终|冒险结束|\bthe end\b|\bend of story\b|\bour story ends\b`)

	deathPattern = regexp.MustCompile(`(?i)你死了|你已死亡|你的冒险到此为止|\byou have died\b|\byou died\b|\byou are dead\b|\bgame over\b`)

	victoryPattern = regexp.MustCompile(`(?i)你胜利了|你赢了|恭喜通关|你成功完成了冒险|\byou win\b|\byou are victorious\b|\bvictory is yours\b`)
)

// Classify maps a narrative segment to a completion reason. Matching is
// case-insensitive. Story-end markers take priority over death markers,
// which take priority over victory markers.
func Classify(text string) models.CompletionReason {
	switch {
	case storyEndPattern.MatchString(text):
		return models.ReasonStoryEnd
	case deathPattern.MatchString(text):
		return models.ReasonDeath
	case victoryPattern.MatchString(text):
		return models.ReasonVictory
	default:
		return models.ReasonNone
	}
}
