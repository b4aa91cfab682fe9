package decompose

import (
	"fmt"
	"strings"
)

func decomposePrompt(requirement string) string {
	return fmt.Sprintf(`Convert the following requirement into a list of development tasks:

%s

Return as a numbered list of specific, actionable development tasks. Each task should be:
- Clear and specific
- Implementable by a developer
- Focused on a single feature or component
- Include testing where appropriate

Format: Return only the numbered list, one task per line.`, requirement)
}

const priorityGuidance = `Priority guidance:
- Highest: security issues or work that blocks everything else
- High: core functionality and user-facing features
- Medium: enhancements to existing behaviour
- Low: nice-to-have improvements`

func consolidatePrompt(tasks []string, background string) string {
	return fmt.Sprintf(`Group these development tasks into fewer, well-scoped JIRA tickets:

%s

Context: %s

Merge tasks that belong to the same feature or component. For each ticket provide:
- "title": a short imperative summary
- "description": an **Overview** (2-3 sentences) followed by **Acceptance Criteria** as a bullet list, using JIRA markdown
- "priority": one of Highest, High, Medium, Low
- "original_tasks": the numbers of the tasks merged into the ticket

%s

Respond with only a JSON array of objects with the fields "title", "description", "priority" and "original_tasks".`,
		numbered(tasks), contextOrDefault(background), priorityGuidance)
}

func describePrompt(tasks []string, background string) string {
	return fmt.Sprintf(`Create detailed professional JIRA descriptions for these development tasks:

%s

Context: %s

For each task, provide a comprehensive description with:
- **Overview**: Detailed explanation of what needs to be done (3-4 sentences)
- **Background**: Why this task is important and how it fits into the project (2-3 sentences)
- **Implementation Details**: Key technical approach and considerations (3-4 sentences)
- **Acceptance Criteria**: Specific, testable requirements (minimum 5 criteria)
- **Definition of Done**: Clear completion checklist

Each description MUST contain at least 10 sentences total. Be thorough and professional.

Format as JSON array with objects containing "task_number" and "description" fields. Use JIRA markdown formatting.`,
		numbered(tasks), contextOrDefault(background))
}

func numbered(tasks []string) string {
	lines := make([]string, len(tasks))
	for i, t := range tasks {
		lines[i] = fmt.Sprintf("%d. %s", i+1, t)
	}
	return strings.Join(lines, "\n")
}

func contextOrDefault(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Not specified"
	}
	return s
}
