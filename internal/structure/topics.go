package structure

import "strings"

// TopicStatus marks whether a topic is still being discussed.
type TopicStatus string

const (
	StatusInProgress TopicStatus = "in_progress"
	StatusCompleted  TopicStatus = "completed"
)

// Topic is one node of the structured summary.
type Topic struct {
	Title    string      `json:"title"`
	Status   TopicStatus `json:"status"`
	Children []Topic     `json:"children,omitempty"`
}

// TopicTree is the structured summary of the session so far. Markdown is the
// verbatim model output and serves as the context for the next structuring
// call; Topics is the parsed tree section for programmatic consumers.
type TopicTree struct {
	Markdown string  `json:"markdown"`
	Topics   []Topic `json:"topics,omitempty"`
}

// Empty reports whether no structuring output exists yet.
func (t TopicTree) Empty() bool { return t.Markdown == "" }

const topicSectionHeading = "トピック・ツリー"

// ParseTree builds a TopicTree from structuring output. The topic section is
// located by its heading; list items become nodes nested by indentation, with
// the 完了 marker mapping to the completed status. Output that deviates from
// the expected format still yields a usable tree with the Markdown intact.
func ParseTree(markdown string) TopicTree {
	tree := TopicTree{Markdown: markdown}

	inSection := false
	type frame struct {
		indent int
		topics *[]Topic
	}
	var stack []frame

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			inSection = strings.Contains(trimmed, topicSectionHeading)
			stack = stack[:0]
			continue
		}
		if !inSection || !strings.HasPrefix(trimmed, "- ") {
			continue
		}

		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		topic := parseTopicLine(strings.TrimPrefix(trimmed, "- "))

		// Pop frames until the parent of this indentation level is on top.
		for len(stack) > 0 && stack[len(stack)-1].indent >= indent {
			stack = stack[:len(stack)-1]
		}
		var dst *[]Topic
		if len(stack) == 0 {
			dst = &tree.Topics
		} else {
			dst = stack[len(stack)-1].topics
		}
		*dst = append(*dst, topic)
		stack = append(stack, frame{indent: indent, topics: &(*dst)[len(*dst)-1].Children})
	}
	return tree
}

func parseTopicLine(s string) Topic {
	title := strings.Trim(s, "* ")
	status := StatusInProgress
	if strings.Contains(title, "(完了)") || strings.Contains(title, "（完了）") {
		status = StatusCompleted
		title = strings.ReplaceAll(title, "(完了)", "")
		title = strings.ReplaceAll(title, "（完了）", "")
	} else {
		title = strings.ReplaceAll(title, "(進行中)", "")
		title = strings.ReplaceAll(title, "（進行中）", "")
	}
	return Topic{Title: strings.TrimSpace(title), Status: status}
}
