package prompts

import (
	"fmt"
	"regexp"
	"strings"
)

// Opener is the fixed first user message of every adventure. It seeds the
// provider's first narrative turn.
const Opener = "故事开始了，我的第一个场景是什么？"

// DefaultSystemTemplate is used when no template is configured.
const DefaultSystemTemplate = "你是一位经验丰富的文字冒险游戏主持人(Game Master)。你将在一个'{{game_theme}}'主题下，根据玩家的行动实时生成独特且逻辑连贯的故事情节。"

var (
	themeVar = regexp.MustCompile(`\{\{game_theme\}\}`)
	anyVar   = regexp.MustCompile(`\{\{(\w+)\}\}`)
)

// ErrTemplate indicates the configured template could not be rendered.
// Callers fall back to MinimalSystemPrompt instead of failing the operation.
type ErrTemplate struct {
	Vars []string
}

func (e *ErrTemplate) Error() string {
	return fmt.Sprintf("system prompt template has unresolved variables: %s", strings.Join(e.Vars, ", "))
}

// MinimalSystemPrompt is the degraded prompt used when rendering the
// configured template fails.
func MinimalSystemPrompt(theme string) string {
	return fmt.Sprintf("你是一位文字冒险游戏主持人，主题是'%s'。", theme)
}

// RenderSystemPrompt substitutes the theme into the template. Variables in
// the {{name}} format other than game_theme are reported as a template error
// so the caller can degrade.
func RenderSystemPrompt(template, theme string) (string, error) {
	if strings.TrimSpace(template) == "" {
		template = DefaultSystemTemplate
	}

	rendered := themeVar.ReplaceAllString(template, theme)

	if leftovers := anyVar.FindAllStringSubmatch(rendered, -1); len(leftovers) > 0 {
		vars := make([]string, 0, len(leftovers))
		for _, m := range leftovers {
			vars = append(vars, m[1])
		}
		return "", &ErrTemplate{Vars: vars}
	}

	return rendered, nil
}
