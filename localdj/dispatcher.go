package localdj

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// candidateTextKeys are the direct string keys scanned for reply text,
// grounded on main.py's _extract_candidate_texts.
var candidateTextKeys = map[string]struct{}{
	"text": {}, "reply": {}, "answer": {}, "content": {}, "tts": {},
	"say": {}, "speech": {}, "nlp_reply": {}, "reply_text": {}, "display_text": {},
}

// candidateTextNestKeys are the keys recursed into looking for more
// candidate text, also grounded on main.py's _extract_candidate_texts.
var candidateTextNestKeys = map[string]struct{}{
	"payload": {}, "data": {}, "results": {}, "result": {},
	"instruction": {}, "directives": {}, "cards": {},
}

// eventEnvelope is the outer shape delivered by the speaker's event
// stream: {"event": "instruction", "data": {"NewLine": "<json>"}}.
type eventEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		NewLine string `json:"NewLine"`
	} `json:"data"`
}

// innerLine is the nested instruction payload carried in NewLine.
type innerLine struct {
	Header struct {
		Namespace string `json:"namespace"`
		Name      string `json:"name"`
	} `json:"header"`
	Payload json.RawMessage `json:"payload"`
}

// recognizeResultPayload is innerLine.Payload's shape when
// header == {SpeechRecognizer, RecognizeResult}.
type recognizeResultPayload struct {
	IsFinal bool `json:"is_final"`
	Results []struct {
		Text string `json:"text"`
	} `json:"results"`
}

// Dispatcher decodes the speaker's nested event envelope and routes it
// to the orchestrator, per spec.md §4.G: every event is first offered
// to the reply-interrupt capture path, then — if it is a final ASR
// RecognizeResult — to intent classification. Any parse failure drops
// the event silently (spec.md §7).
type Dispatcher struct {
	orch *Orchestrator
	log  *logrus.Entry
}

// NewDispatcher constructs a Dispatcher that routes decoded events to orch.
func NewDispatcher(orch *Orchestrator) *Dispatcher {
	return &Dispatcher{orch: orch, log: logrus.WithField("component", "dispatcher")}
}

// HandleEvent decodes one raw event string and dispatches it. requestID
// is a fresh google/uuid value attached to every log line emitted while
// processing this event, for correlation across the reply-capture and
// ASR-routing paths.
func (d *Dispatcher) HandleEvent(ctx context.Context, raw string) {
	requestID := uuid.New().String()
	log := d.log.WithField("request_id", requestID)

	var envelope eventEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		log.WithError(err).Debug("dropping event: malformed envelope")
		return
	}
	if envelope.Event != "instruction" || envelope.Data.NewLine == "" {
		return
	}

	var line innerLine
	var generic map[string]any
	if err := json.Unmarshal([]byte(envelope.Data.NewLine), &line); err != nil {
		log.WithError(err).Debug("dropping event: malformed instruction line")
		return
	}
	if err := json.Unmarshal([]byte(envelope.Data.NewLine), &generic); err != nil {
		return
	}

	namespace := line.Header.Namespace
	name := line.Header.Name

	d.tryCaptureReplyText(ctx, log, namespace, name, generic)

	if namespace != "SpeechRecognizer" || name != "RecognizeResult" {
		return
	}

	var result recognizeResultPayload
	if err := json.Unmarshal(line.Payload, &result); err != nil {
		log.WithError(err).Debug("dropping event: malformed RecognizeResult payload")
		return
	}
	if !result.IsFinal || len(result.Results) == 0 {
		return
	}
	text := strings.TrimSpace(result.Results[0].Text)
	if text == "" {
		return
	}

	log.WithField("text", text).Info("final ASR text received")
	d.orch.OnFinalASR(ctx, text)
}

// tryCaptureReplyText mirrors main.py's try_capture_reply_text: it is
// skipped for the RecognizeResult namespace/name itself (that's the
// user's own speech, not a reply), scans payload and the whole line
// for candidate reply text, and — if the header looks like any kind of
// assistant reply/TTS/dialog event — logs the captured text and offers
// the event to the orchestrator's reply-interrupt hook.
func (d *Dispatcher) tryCaptureReplyText(ctx context.Context, log *logrus.Entry, namespace, name string, line map[string]any) {
	if namespace == "SpeechRecognizer" && name == "RecognizeResult" {
		return
	}

	var texts []string
	if payload, ok := line["payload"]; ok {
		texts = append(texts, extractCandidateTexts(payload)...)
	}
	texts = append(texts, extractCandidateTexts(line)...)
	captured := dedupNonEmpty(texts)
	if len(captured) == 0 {
		return
	}

	namespaceLower := strings.ToLower(namespace)
	nameLower := strings.ToLower(name)
	maybeReplyEvent := strings.Contains(namespaceLower, "tts") ||
		strings.Contains(namespaceLower, "speechsynthesizer") ||
		strings.Contains(namespaceLower, "nlp") ||
		strings.Contains(namespaceLower, "dialog") ||
		strings.Contains(namespaceLower, "assistant") ||
		strings.Contains(nameLower, "reply") ||
		strings.Contains(nameLower, "respond") ||
		strings.Contains(nameLower, "speak")
	if !maybeReplyEvent {
		return
	}

	log.WithFields(logrus.Fields{
		"namespace": namespace,
		"name":      name,
		"text":      captured[0],
	}).Info("reply candidate captured")

	d.orch.TryInterruptReply(ctx, namespace, name)
}

// extractCandidateTexts walks an arbitrary decoded-JSON value looking
// for reply text, per candidateTextKeys/candidateTextNestKeys.
func extractCandidateTexts(value any) []string {
	switch v := value.(type) {
	case string:
		if text := strings.TrimSpace(v); text != "" {
			return []string{text}
		}
		return nil
	case []any:
		var out []string
		for _, item := range v {
			out = append(out, extractCandidateTexts(item)...)
		}
		return out
	case map[string]any:
		var out []string
		for key, item := range v {
			keyLower := strings.ToLower(key)
			if _, ok := candidateTextKeys[keyLower]; ok {
				if s, ok := item.(string); ok {
					if text := strings.TrimSpace(s); text != "" {
						out = append(out, text)
					}
				}
			}
			if _, ok := candidateTextNestKeys[keyLower]; ok {
				out = append(out, extractCandidateTexts(item)...)
			}
		}
		return out
	default:
		return nil
	}
}

func dedupNonEmpty(texts []string) []string {
	seen := make(map[string]struct{}, len(texts))
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
