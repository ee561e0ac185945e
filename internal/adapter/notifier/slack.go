package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/venatrix/threatlens/internal/core/domain"
)

// SlackNotifier posts new high-severity reports to a Slack channel. It
// implements ports.AlertNotifier; the pipeline logs and ignores failures.
type SlackNotifier struct {
	botToken    string
	channel     string
	mentionTeam string
	httpClient  *http.Client
}

func NewSlackNotifier(botToken, channel, mentionTeam string) *SlackNotifier {
	return &SlackNotifier{
		botToken:    botToken,
		channel:     channel,
		mentionTeam: mentionTeam,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifyHighSeverityReport sends a formatted alert for one report.
func (s *SlackNotifier) NotifyHighSeverityReport(report domain.Report) error {
	payload := SlackMessage{
		Channel: s.channel,
		Blocks:  s.buildReportBlocks(report),
		Text:    fmt.Sprintf("🚨 %s severity threat report: %s", report.Severity, report.Title),
	}
	return s.sendMessage(payload)
}

func (s *SlackNotifier) buildReportBlocks(report domain.Report) []SlackBlock {
	blocks := []SlackBlock{
		{
			Type: "header",
			Text: &SlackText{
				Type: "plain_text",
				Text: "🚨 High-Severity Threat Report",
			},
		},
		{
			Type: "section",
			Fields: []SlackText{
				{Type: "mrkdwn", Text: fmt.Sprintf("*Title*\n%s", report.Title)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Source*\n%s", report.Source)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Severity*\n%s", report.Severity)},
				{Type: "mrkdwn", Text: fmt.Sprintf("*Category*\n%s", report.Category)},
			},
		},
		{
			Type: "divider",
		},
	}

	// Indicator counts per type, most interesting first.
	var iocLines []string
	for _, t := range domain.IndicatorTypes {
		if n := len(report.Indicators[t]); n > 0 {
			iocLines = append(iocLines, fmt.Sprintf("• %s: %d", t, n))
		}
	}
	if len(iocLines) > 0 {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{
				Type: "mrkdwn",
				Text: "*Extracted Indicators*\n" + strings.Join(iocLines, "\n"),
			},
		})
	}

	if len(report.Tags) > 0 {
		blocks = append(blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*Tags*: %s\n\ncc: %s", strings.Join(report.Tags, ", "), s.mentionTeam),
			},
		})
	}

	return blocks
}

func (s *SlackNotifier) sendMessage(msg SlackMessage) error {
	jsonData, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack message: %w", err)
	}

	req, err := http.NewRequest("POST", "https://slack.com/api/chat.postMessage", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.botToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}

	return nil
}

// Slack API structures

type SlackMessage struct {
	Channel string       `json:"channel"`
	Blocks  []SlackBlock `json:"blocks"`
	Text    string       `json:"text"` // Fallback text
}

type SlackBlock struct {
	Type   string      `json:"type"`
	Text   *SlackText  `json:"text,omitempty"`
	Fields []SlackText `json:"fields,omitempty"`
}

type SlackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
