// Package slack escalates emergency assessments to Slack via incoming webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/vettriage/internal/triage"
)

const (
	maxTextLen  = 3000
	httpTimeout = 10 * time.Second
)

// Notifier posts assessments to a Slack webhook. It implements triage.Notifier.
type Notifier struct {
	webhookURL string
	client     *http.Client
	logger     log.Logger
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string, logger log.Logger) *Notifier {
	if logger == nil {
		logger = log.Nop()
	}
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
	}
}

// Send posts an assessment to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, a *triage.Assessment) error {
	if n.webhookURL == "" {
		return nil
	}

	body, err := json.Marshal(buildMessage(a))
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	n.logger.Info(ctx, "slack escalation sent", "assessment_id", a.ID, "triage_level", a.Level)
	return nil
}

func buildMessage(a *triage.Assessment) map[string]any {
	blocks := []map[string]any{
		headerBlock(a),
		fieldsBlock(a),
		{"type": "divider"},
		recommendationBlock(a),
	}
	if len(a.Signs) > 0 {
		blocks = append(blocks, signsBlock(a.Signs))
	}
	blocks = append(blocks, contextBlock(a))

	return map[string]any{
		// fallback for notifications and clients without block kit
		"text":   fmt.Sprintf("%s triage: %s", titleCase(string(a.Level)), subject(a)),
		"blocks": blocks,
	}
}

func headerBlock(a *triage.Assessment) map[string]any {
	text := fmt.Sprintf("%s %s triage: %s", levelEmoji(a.Level), titleCase(string(a.Level)), subject(a))
	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": truncate(text, 150),
		},
	}
}

func fieldsBlock(a *triage.Assessment) map[string]any {
	in := a.Input
	fields := []map[string]any{
		mrkdwn(fmt.Sprintf("*Source:* %s", a.Source)),
		mrkdwn(fmt.Sprintf("*Species:* %s", orDash(string(in.Species)))),
		mrkdwn(fmt.Sprintf("*Breed:* %s", orDash(in.Breed))),
		mrkdwn(fmt.Sprintf("*Age / sex:* %s / %s", orDash(in.Age), orDash(string(in.Sex)))),
	}
	if in.TimeElapsed != "" {
		fields = append(fields, mrkdwn(fmt.Sprintf("*Started:* %s", escapeMrkdwn(in.TimeElapsed))))
	}
	if m := a.Match; m != nil {
		switch {
		case m.Toxin != nil:
			fields = append(fields,
				mrkdwn(fmt.Sprintf("*Toxin:* %s (#%d)", escapeMrkdwn(m.Toxin.ToxinName), m.Toxin.ID)),
				mrkdwn(fmt.Sprintf("*Amount:* %s", orDash(m.Toxin.AmountIngested))),
				mrkdwn(fmt.Sprintf("*Weight:* %s kg", orDash(m.Toxin.WeightKg))),
			)
			if m.Toxin.TimeSinceIngestion != "" {
				fields = append(fields, mrkdwn(fmt.Sprintf("*Ingested:* %s", escapeMrkdwn(m.Toxin.TimeSinceIngestion))))
			}
			if m.Tier == triage.TierToxinAny {
				fields = append(fields, mrkdwn(fmt.Sprintf("*Note:* record is for %s", escapeMrkdwn(string(m.Toxin.Species)))))
			}
		case m.Case != nil:
			fields = append(fields, mrkdwn(fmt.Sprintf("*Case:* %s (#%d)", escapeMrkdwn(m.Case.Category), m.Case.ID)))
		}
	}

	// field text is user supplied, keep each one well inside the 2000 char limit
	for _, f := range fields {
		f["text"] = truncate(f["text"].(string), 2000)
	}

	// Slack allows at most 10 fields per section
	if len(fields) > 10 {
		fields = fields[:10]
	}
	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func recommendationBlock(a *triage.Assessment) map[string]any {
	text := truncate(escapeMrkdwn(a.Recommendation), maxTextLen)
	if text == "" {
		text = "_No recommendation available._"
	}
	return map[string]any{
		"type": "section",
		"text": mrkdwn(fmt.Sprintf("*Recommendation*\n\n%s", text)),
	}
}

func signsBlock(signs []string) map[string]any {
	return map[string]any{
		"type": "section",
		"text": mrkdwn(truncate("*Signs reported:* "+escapeMrkdwn(strings.Join(signs, ", ")), maxTextLen)),
	}
}

func contextBlock(a *triage.Assessment) map[string]any {
	ts := a.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return map[string]any{
		"type": "context",
		"elements": []map[string]any{
			mrkdwn(fmt.Sprintf("vettriage • assessment %s • %s", a.ID, ts.UTC().Format("2006-01-02 15:04 UTC"))),
		},
	}
}

func mrkdwn(text string) map[string]any {
	return map[string]any{"type": "mrkdwn", "text": text}
}

// subject names what the assessment is about: the matched record or the
// first reported sign. The result is already escaped.
func subject(a *triage.Assessment) string {
	species := escapeMrkdwn(string(a.Input.Species))
	if species == "" {
		species = "Pet"
	}
	switch {
	case a.Match != nil && a.Match.Toxin != nil:
		return species + ", " + escapeMrkdwn(a.Match.Toxin.ToxinName)
	case a.Match != nil && a.Match.Case != nil:
		return species + ", " + escapeMrkdwn(a.Match.Case.Category)
	case len(a.Signs) > 0:
		return species + ", " + escapeMrkdwn(a.Signs[0])
	default:
		return species
	}
}

var mrkdwnEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// escapeMrkdwn neutralises Slack control sequences (<!channel>, <@U..>,
// <url|text>) in caller supplied text.
func escapeMrkdwn(s string) string {
	return mrkdwnEscaper.Replace(s)
}

func levelEmoji(l triage.Level) string {
	switch l {
	case triage.LevelEmergency:
		return "\U0001f534" // red circle
	case triage.LevelUrgent:
		return "\U0001f7e1" // yellow circle
	default:
		return "\U0001f7e2" // green circle
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// orDash escapes s, or returns "-" when it is empty.
func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return escapeMrkdwn(s)
}

// truncate cuts s to at most limit bytes on a rune boundary.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
