package intent

import (
	"time"

	"github.com/kalambet/fyydbot/internal/engine"
)

// QueryTranscript builds the chat messages asking the oracle to pull the
// podcast name, keywords and date hint out of text.
func QueryTranscript(text string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: "Extract podcast search criteria from the user query and return the response as JSON:"},
		{Role: "system", Content: "Do only parse the query and detect the fields. Do NOT try to create matching contents"},
		{Role: "system", Content: `Output format: {"PodcastName": "[name]", "Keywords": "[keywords]", "Date": "[date]"}` + "\n"},
		{Role: "user", Content: text},
	}
}

// DateTranscript builds the chat messages asking the oracle to turn a free
// form date hint into start and end dates relative to now.
func DateTranscript(hint string, now time.Time) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: "Forget everything from before. This is a new task"},
		{Role: "system", Content: "The current Date and time is " + now.Format("2006-01-02 15:04:05") + " "},
		{Role: "system", Content: "Interpret an input from the user that contains a date value. This can be of human readable format like 'last month', a valid datetime value, just a year or a month.  Try to determine the startdate and enddate of that entry."},
		{Role: "system", Content: "Do only parse the query and detect the fields. Do NOT try to create matching contents"},
		{Role: "system", Content: "All dates should be in the format yyyy-MM-dd"},
		{Role: "system", Content: `Output format: {"startDate": "[startDate]", "endDate": "[endDate]"}`},
		{Role: "user", Content: hint},
	}
}
