package alert

import (
	"context"
	"fmt"
)

var slackColors = map[AlertLevel]string{
	Info:     "#36a64f",
	Warning:  "#ffcc00",
	Error:    "#ff0000",
	Critical: "#8b0000",
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color   string       `json:"color"`
	Pretext string       `json:"pretext"`
	Text    string       `json:"text"`
	Fields  []slackField `json:"fields"`
	Footer  string       `json:"footer"`
	TS      int64        `json:"ts"`
}

type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

// SlackChannel posts alerts to an incoming webhook as a single attachment
type SlackChannel struct {
	webhookURL string
	poster     *poster
}

func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		poster:     newPoster("slack"),
	}
}

func (s *SlackChannel) Name() string {
	return "slack"
}

func (s *SlackChannel) Send(ctx context.Context, alert AlertPayload) error {
	if s.webhookURL == "" {
		return nil
	}

	color, ok := slackColors[alert.Level]
	if !ok {
		color = slackColors[Info]
	}

	att := slackAttachment{
		Color:   color,
		Pretext: fmt.Sprintf("[%s] %s", alert.Level, alert.Title),
		Text:    alert.Message,
		Fields:  make([]slackField, 0, len(alert.Fields)),
		Footer:  "blackswan",
		TS:      alert.Timestamp.Unix(),
	}
	for _, k := range alert.SortedFieldKeys() {
		att.Fields = append(att.Fields, slackField{Title: k, Value: alert.Fields[k], Short: true})
	}

	return s.poster.postJSON(ctx, s.webhookURL, slackMessage{Attachments: []slackAttachment{att}})
}
