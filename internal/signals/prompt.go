package signals

import (
	"encoding/json"
	"fmt"

	"github.com/marketpulse/backend/internal/storage/models"
	"github.com/marketpulse/backend/pkg/utils"
)

const promptTemplate = `You are an Indian stock market analyst.

Return STRICT JSON ONLY:
{
  "results": [
    {
      "id": <news_id>,
      "tickers": ["RELIANCE.NS"],
      "impact_label": "bullish" | "bearish" | "neutral" | "uncertain",
      "impact_confidence": 0.0 - 1.0,
      "impact_summary": "Short 1-sentence impact",
      "topics": []
    }
  ]
}

Rules:
- Use ONLY valid Indian tickers (<SYMBOL>.NS)
- Return one entry per news id from the batch
- If unsure: tickers [], impact_label "uncertain", impact_confidence 0.5
- NO markdown, NO backticks, NO text outside JSON

News batch:
%s`

type promptItem struct {
	ID       int64  `json:"id"`
	Headline string `json:"headline"`
	Snippet  string `json:"snippet"`
}

// BuildPrompt renders the batch instruction. Snippets are cut to
// snippetLength runes.
func BuildPrompt(articles []*models.Article, snippetLength int) (string, error) {
	items := make([]promptItem, 0, len(articles))
	for _, a := range articles {
		items = append(items, promptItem{
			ID:       a.ID,
			Headline: a.Title,
			Snippet:  utils.Truncate(a.Content, snippetLength),
		})
	}

	batch, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt batch: %w", err)
	}
	return fmt.Sprintf(promptTemplate, batch), nil
}
