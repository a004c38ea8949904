// Package extract turns bet-slip screenshots into paired bet submissions.
package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alanyoungcy/surebet/internal/domain"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 1024
	defaultTimeout   = 60 * time.Second
)

const systemPrompt = `You read screenshots of sports betting slips. The image shows two opposing
bets on the same event placed at two bookmakers (a surebet). Reply with a single
JSON object and nothing else:
{
  "betA": {"bettingHouse":"","sport":"","league":"","teamA":"","teamB":"","betType":"","selectedSide":"A","odds":"","stake":"","payout":""},
  "betB": {"bettingHouse":"","sport":"","league":"","teamA":"","teamB":"","betType":"","selectedSide":"B","odds":"","stake":"","payout":""},
  "gameDate": "YYYY-MM-DD",
  "gameTime": "HH:MM"
}
Amounts are plain decimal strings with a dot separator and no currency symbol.
teamA and teamB are the two competitors in the order printed on the slip.
selectedSide is "A" when the bet backs teamA (or the first outcome), otherwise "B".
Leave a field empty when it cannot be read.`

// Config holds OpenAI-compatible client settings.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// VisionExtractor implements domain.Extractor with a vision-capable chat
// model behind any OpenAI-compatible API.
type VisionExtractor struct {
	api       *openai.Client
	model     string
	maxTokens int
	timeout   time.Duration
	now       func() time.Time
}

// NewVisionExtractor creates an extractor from cfg.
func NewVisionExtractor(cfg Config) (*VisionExtractor, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("extract: API key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	openaiCfg := openai.DefaultConfig(apiKey)
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		openaiCfg.BaseURL = baseURL
	}

	return &VisionExtractor{
		api:       openai.NewClientWithConfig(openaiCfg),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		now:       time.Now,
	}, nil
}

// Name identifies the extractor in logs and responses.
func (e *VisionExtractor) Name() string {
	return "openai:" + e.model
}

// Extract sends the image to the model and parses its JSON reply. Failures
// wrap domain.ErrExtractionFailed.
func (e *VisionExtractor) Extract(ctx context.Context, image []byte, contentType string) (domain.OCRData, error) {
	if len(image) == 0 {
		return domain.OCRData{}, fmt.Errorf("%w: empty image", domain.ErrExtractionFailed)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)
	req := openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: "Extract both bets from this slip."},
					{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
						URL:    dataURL,
						Detail: openai.ImageURLDetailHigh,
					}},
				},
			},
		},
		MaxTokens: e.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := e.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.OCRData{}, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	if len(resp.Choices) == 0 {
		return domain.OCRData{}, fmt.Errorf("%w: empty response", domain.ErrExtractionFailed)
	}

	data, err := ParseReply(resp.Choices[0].Message.Content, e.now())
	if err != nil {
		return domain.OCRData{}, fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	return data, nil
}

// reply mirrors domain.OCRData with the date left as text.
type reply struct {
	BetA     domain.LegInput `json:"betA"`
	BetB     domain.LegInput `json:"betB"`
	GameDate string          `json:"gameDate"`
	GameTime string          `json:"gameTime"`
}

// ParseReply decodes a model reply into OCRData. Markdown code fences are
// stripped; an unreadable date falls back to fallback's calendar day.
func ParseReply(content string, fallback time.Time) (domain.OCRData, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var r reply
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		return domain.OCRData{}, fmt.Errorf("decode reply: %w", err)
	}

	out := domain.OCRData{
		BetA:     cleanLeg(r.BetA, domain.SideA),
		BetB:     cleanLeg(r.BetB, domain.SideB),
		GameTime: strings.TrimSpace(r.GameTime),
	}
	out.GameDate = parseGameDate(r.GameDate, out.GameTime, fallback)
	return out, nil
}

func cleanLeg(l domain.LegInput, defaultSide domain.Side) domain.LegInput {
	trim := strings.TrimSpace
	l.BettingHouse = trim(l.BettingHouse)
	l.Sport = trim(l.Sport)
	l.League = trim(l.League)
	l.TeamA = trim(l.TeamA)
	l.TeamB = trim(l.TeamB)
	l.BetType = trim(l.BetType)
	l.Odds = trim(l.Odds)
	l.Stake = trim(l.Stake)
	l.Payout = trim(l.Payout)
	side := domain.Side(strings.ToUpper(trim(string(l.SelectedSide))))
	if side != domain.SideA && side != domain.SideB {
		side = defaultSide
	}
	l.SelectedSide = side
	return l
}

func parseGameDate(date, clock string, fallback time.Time) time.Time {
	date = strings.TrimSpace(date)
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return t.UTC()
	}
	for _, layout := range []string{"2006-01-02", "02/01/2006", "02.01.2006"} {
		d, err := time.Parse(layout, date)
		if err != nil {
			continue
		}
		if c, err := time.Parse("15:04", clock); err == nil {
			d = d.Add(time.Duration(c.Hour())*time.Hour + time.Duration(c.Minute())*time.Minute)
		}
		return d.UTC()
	}
	y, m, d := fallback.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var _ domain.Extractor = (*VisionExtractor)(nil)
