// Package prompt renders the generation prompt sent to the chat service.
package prompt

import (
	"fmt"
	"strings"

	"vizgen/internal/jobs"
)

const manimTemplate = `#Persona: You are a Manim python code generator. Generate python code only, no other text.

Generate manim visualization for: %s
Visualization name: %s

# Requirements:
- *Valid manim python code only*
- Scene/class name must be "Scene"
- Provide solution if topic is a question
- Create logical solution for math/STEM questions
- Provide step by step solution for Math / Physics question
- Make sure to draw within the canvas of resolution %s
- Don't overlap elements in a chaotic manner, make sure the video is viewable and clean.
- Use %s theme and %s accent color
- HD video. resolution: %s
- Clean, uncramped visualization
- Use arrows/graphs as needed

# Output Format:
` + "```python %s\n{PYTHON_CODE}\n```\n"

// Build renders the Manim generation prompt from the request parameters and
// the resolved visualization name.
func Build(req jobs.Request, name string) string {
	theme := defaultString(req.Theme, "Dark")
	accent := defaultString(req.AccentColor, "Blue")
	resolution := defaultString(req.Resolution, "(1920x1080)")

	p := fmt.Sprintf(manimTemplate, req.Query, name, resolution, theme, accent, resolution, resolution)
	if instructions := strings.TrimSpace(req.SpecialInstructions); instructions != "" {
		p += "\n# Suggestions for the visualization: " + instructions + "\n"
	}
	return p
}

// BuildRetry renders the follow-up prompt resubmitting renderer diagnostics.
func BuildRetry(diagnostics string) string {
	return "The code has the following error when running, please fix:" + diagnostics
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
