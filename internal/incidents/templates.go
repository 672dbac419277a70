package incidents

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Built-in prompt templates. Placeholders are filled per incident before the
// agent is provisioned; operators can override either template with a file
// via configuration.
const (
	defaultSystemPrompt = `You are an automated incident notification agent for the IT operations team.
You are calling the on-call engineer about incident {{incident_number}}: {{short_description}}.

Incident details:
- Number: {{incident_number}}
- Priority: {{priority}}
- Occurred at: {{incident_date_time}}
- Summary: {{short_description}}
- Description: {{description}}
- Error details: {{error_details}}
- Possible fix: {{possible_fix}}

Clearly state the incident number, priority and summary. Ask whether the
engineer acknowledges the incident. Answer questions only from the details
above; if asked something you do not know, say the details are available in
the incident record. Keep the call short and professional.`

	defaultFirstMessage = `Hello, this is the incident notification service. I am calling about ` +
		`{{priority}} priority incident {{incident_number}}: {{short_description}}. ` +
		`Do you have a moment to go over the details?`
)

const (
	defaultPriority    = "High"
	defaultPossibleFix = "Please check IT Assist for details"
)

// Templates holds the prompt pair used for every provisioned agent.
type Templates struct {
	SystemPrompt string
	FirstMessage string
}

// LoadTemplates reads template overrides from disk, falling back to the
// built-in templates when a path is empty.
func LoadTemplates(systemPromptFile, firstMessageFile string) (Templates, error) {
	tpl := Templates{
		SystemPrompt: defaultSystemPrompt,
		FirstMessage: defaultFirstMessage,
	}
	if systemPromptFile != "" {
		data, err := os.ReadFile(systemPromptFile)
		if err != nil {
			return Templates{}, fmt.Errorf("incidents: read system prompt template: %w", err)
		}
		tpl.SystemPrompt = string(data)
	}
	if firstMessageFile != "" {
		data, err := os.ReadFile(firstMessageFile)
		if err != nil {
			return Templates{}, fmt.Errorf("incidents: read first message template: %w", err)
		}
		tpl.FirstMessage = string(data)
	}
	return tpl, nil
}

// render fills {{placeholder}} markers with incident fields. Unknown markers
// are left untouched so template typos are visible rather than silently
// blanked.
func render(tpl string, inc Incident) string {
	priority := inc.Priority
	if priority == "" {
		priority = defaultPriority
	}
	possibleFix := inc.PossibleFix
	if possibleFix == "" {
		possibleFix = defaultPossibleFix
	}
	replacer := strings.NewReplacer(
		"{{incident_number}}", inc.Number,
		"{{short_description}}", inc.ShortDescription,
		"{{description}}", inc.Description,
		"{{priority}}", priority,
		"{{incident_date_time}}", inc.OccurredAt.Format(time.RFC3339),
		"{{error_details}}", inc.ErrorDetails,
		"{{possible_fix}}", possibleFix,
	)
	return replacer.Replace(tpl)
}
