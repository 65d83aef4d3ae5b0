package blograg

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/flarexio/blograg/llm"
	"github.com/flarexio/blograg/vector"
)

var errInvalidJSON = errors.New("model did not return a JSON object")

const answerInstructions = `You are the assistant of a technical blog.
Answer the user's question in Markdown using only the blog posts below.
Cite the posts you used by title. If the posts do not cover the question, say so.`

const relatedInstructions = `You suggest follow-up questions for readers of a technical blog.
Given the reader's question and the blog posts they were shown, propose 3 short
related questions that the posts could answer.
Reply with JSON only: {"related_questions": ["...", "...", "..."]}`

const productInstructions = `You recommend one product to readers of a technical blog.
Pick the single product from the catalog that best fits the blog posts below.
Reply with JSON only: {"product_name": "<name from the catalog>", "reason": "<one sentence>"}`

func writeDocuments(sb *strings.Builder, docs []vector.Document) {
	for i, doc := range docs {
		fmt.Fprintf(sb, "\n### [%d] %s\n", i+1, doc.Title)
		if doc.URL != "" {
			fmt.Fprintf(sb, "URL: %s\n", doc.URL)
		}

		sb.WriteString(doc.Content)
		sb.WriteString("\n")
	}
}

func answerMessages(query string, docs []vector.Document) []llm.Message {
	var sb strings.Builder
	sb.WriteString(answerInstructions)
	sb.WriteString("\n\n## Blog posts\n")

	if len(docs) == 0 {
		sb.WriteString("\n(no matching posts)\n")
	}

	writeDocuments(&sb, docs)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: sb.String()},
		{Role: llm.RoleUser, Content: query},
	}
}

func relatedQuestionMessages(question string, docs []vector.Document) []llm.Message {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\n## Blog posts\n")
	writeDocuments(&sb, docs)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: relatedInstructions},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

func productMessages(docs []vector.Document, products []Product) []llm.Message {
	var sb strings.Builder
	sb.WriteString("## Catalog\n")
	for _, p := range products {
		fmt.Fprintf(&sb, "- %s: %s\n", p.Name, p.Description)
	}

	sb.WriteString("\n## Blog posts\n")
	writeDocuments(&sb, docs)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: productInstructions},
		{Role: llm.RoleUser, Content: sb.String()},
	}
}

// extractJSON returns the outermost JSON object of a model reply, which may
// be wrapped in prose or a Markdown code fence.
func extractJSON(reply string) (string, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return "", errInvalidJSON
	}

	raw := reply[start : end+1]
	if !gjson.Valid(raw) {
		return "", errInvalidJSON
	}

	return raw, nil
}

func parseRelatedQuestions(reply string) ([]string, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}

	result := gjson.Get(raw, "related_questions")
	if !result.IsArray() {
		return nil, fmt.Errorf("%w: missing related_questions", errInvalidJSON)
	}

	questions := make([]string, 0, len(result.Array()))
	for _, q := range result.Array() {
		s := strings.TrimSpace(q.String())
		if s == "" {
			continue
		}

		questions = append(questions, s)
	}

	return questions, nil
}

func parseProductRecommendation(reply string, products []Product) (*ProductRecommendation, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(gjson.Get(raw, "product_name").String())
	reason := strings.TrimSpace(gjson.Get(raw, "reason").String())

	for _, p := range products {
		if strings.EqualFold(p.Name, name) {
			return &ProductRecommendation{
				ProductName: p.Name,
				ProductURL:  p.URL,
				Reason:      reason,
			}, nil
		}
	}

	return nil, fmt.Errorf("unknown product %q", name)
}
