package summarize

import "fmt"

func summaryPrompt(text string) string {
	return fmt.Sprintf(`Write a detailed summary of the following document in markdown.
Use # for the main topic and ## for sections. Cover every major point.
Respond with the summary only, no preamble.

Document:
%s`, text)
}

func partialPrompt(text string) string {
	return fmt.Sprintf(`Summarize the following excerpt of a larger document.
Keep every important fact, name, and figure. Write plain prose.
Respond with the summary only, no preamble.

Excerpt:
%s`, text)
}

func combinePrompt(partials string) string {
	return fmt.Sprintf(`The following are summaries of consecutive parts of one document.
Merge them into a single coherent markdown summary. Use # for the main topic
and ## for sections. Remove repetition, keep every distinct point.
Respond with the summary only, no preamble.

Partial summaries:
%s`, partials)
}

func titlePrompt(markdown string) string {
	return fmt.Sprintf(`Give this document a short title of at most eight words.
Respond with the title only, no quotes, no punctuation at the end.

Document summary:
%s`, markdown)
}
