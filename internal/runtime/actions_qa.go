package runtime

import (
	"context"
	"fmt"
	"strings"

	"concierge/internal/audit"
	"concierge/internal/kb"
	"concierge/internal/llm"
)

const blockedQueryMessage = "I can only answer questions about our business and services."

// clarificationMessage is sent when retrieval lands in the low-confidence
// band: there is probably an answer, the query was just too vague.
const clarificationMessage = "I'm not sure I understood that correctly. Could you rephrase your question?"

// noAnswerMessage is sent when retrieval finds nothing usable.
const noAnswerMessage = "I couldn't find an answer to that in our knowledge base. Would you like me to connect you with a team member?"

// refuseQuery records a guardrail refusal and tells the user, keeping the
// blocked text itself out of the audit trail.
func (rt *Runtime) refuseQuery(ctx context.Context, tc *TurnContext, action string, reason error, out *Output) {
	rt.log.Warn("query from %s blocked: %v", tc.SenderID, reason)
	rt.auditEvent(ctx, audit.Event{
		Action:         action,
		ConversationID: tc.SenderID,
		Status:         audit.StatusFailed,
		Error:          reason.Error(),
	})
	out.Reply(blockedQueryMessage)
}

// answerQuestion is the retrieval-first QA path: screen the query, search
// the knowledge base, then answer, ask for clarification or decline based
// on how confident retrieval was.
func (rt *Runtime) answerQuestion(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output

	if err := rt.guard.CheckQuery(tc.Text); err != nil {
		rt.refuseQuery(ctx, tc, "answer_question", err, &out)
		return out, nil
	}

	query := kb.BuildQuery(tc.Text, tc.Intent)
	results, err := rt.kb.SearchAll(ctx, query, kb.SearchOptions{})
	if err != nil {
		rt.log.Warn("knowledge base search failed: %v", err)
		results = nil
	}

	decision := rt.guard.Evaluate(tc.Text, results)
	switch {
	case decision.ShouldAnswer:
		out.Reply(decision.Answer)
	case decision.NeedsClarification:
		out.Reply(clarificationMessage)
	default:
		rt.log.Debug("declining to answer: %s", decision.Reason)
		out.Reply(noAnswerMessage)
	}
	return out, nil
}

// searchKnowledgeBase surfaces raw retrieval results with their sources.
func (rt *Runtime) searchKnowledgeBase(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output

	if err := rt.guard.CheckQuery(tc.Text); err != nil {
		rt.refuseQuery(ctx, tc, "search_knowledge_base", err, &out)
		return out, nil
	}

	results, err := rt.kb.SearchAll(ctx, kb.BuildQuery(tc.Text, tc.Intent), kb.SearchOptions{})
	if err != nil {
		return out, fmt.Errorf("knowledge base search: %w", err)
	}
	if len(results) == 0 {
		out.Reply("I couldn't find anything about that in our knowledge base.")
		return out, nil
	}

	var sb strings.Builder
	sb.WriteString("Here's what I found:")
	for _, result := range results {
		fmt.Fprintf(&sb, "\n- %s", strings.TrimSpace(result.Content))
		if result.Source != "" {
			fmt.Fprintf(&sb, " (%s)", result.Source)
		}
	}
	out.Reply(sb.String())
	return out, nil
}

// llmResponse answers with the LLM grounded in retrieved context. Retrieval
// is skipped when the active config turns the knowledge base off.
func (rt *Runtime) llmResponse(ctx context.Context, tc *TurnContext) (Output, error) {
	if err := rt.guard.CheckQuery(tc.Text); err != nil {
		var out Output
		rt.refuseQuery(ctx, tc, "llm_response", err, &out)
		return out, nil
	}

	var results []kb.Result
	if rt.configs.LLM(ctx).UseKnowledgeBase {
		var err error
		results, err = rt.kb.SearchAll(ctx, kb.BuildQuery(tc.Text, tc.Intent), kb.SearchOptions{})
		if err != nil {
			rt.log.Warn("knowledge base search failed: %v", err)
			results = nil
		}
	}
	return rt.generateReply(ctx, tc, contextFromResults(results))
}

// llmFallback handles turns the NLU could not classify. When the config
// keeps fallback off, or the classifier was actually confident about the
// intent, the user gets the bot's plain fallback line instead. Otherwise
// the knowledge base gets the first try before the model answers freely.
func (rt *Runtime) llmFallback(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output
	cfg := rt.configs.LLM(ctx)
	if !cfg.Enabled || !cfg.FallbackToLLM {
		out.Reply(rt.configs.Bot(ctx).FallbackMessage)
		return out, nil
	}
	if tc.Confidence >= cfg.ConfidenceThreshold {
		out.Reply(rt.configs.Bot(ctx).FallbackMessage)
		return out, nil
	}

	var results []kb.Result
	if cfg.UseKnowledgeBase {
		var err error
		results, err = rt.kb.SearchAll(ctx, kb.BuildQuery(tc.Text, tc.Intent), kb.SearchOptions{})
		if err != nil {
			rt.log.Warn("knowledge base search failed: %v", err)
			results = nil
		}
	}
	return rt.generateReply(ctx, tc, contextFromResults(results))
}

// generateReply runs the dispatcher and applies the grounding guardrail.
// With context the reply must not invent numbers; without context it is
// labelled as general knowledge.
func (rt *Runtime) generateReply(ctx context.Context, tc *TurnContext, kbContext string) (Output, error) {
	var out Output

	result := rt.llm.Generate(ctx, tc.Text, kbContext)
	if !result.Success {
		rt.log.Info("generation unavailable (%s): %s", result.Provider, result.Error)
		out.Reply("I'm not sure about that one. Would you like me to connect you with a team member?")
		return out, nil
	}

	reply := result.Content
	if kbContext != "" {
		check := rt.guard.ValidateResponse(reply, []string{kbContext})
		for _, warning := range check.Warnings {
			rt.log.Warn("generated reply: %s", warning)
		}
		if check.Downgrade {
			reply += "\n\nPlease double-check any specific figures with our team."
		}
	} else {
		reply += "\n\n" + llm.GeneralKnowledgeNote
	}

	out.Reply(reply)
	return out, nil
}

func contextFromResults(results []kb.Result) string {
	if len(results) == 0 {
		return ""
	}
	parts := make([]string, 0, len(results))
	for _, result := range results {
		parts = append(parts, strings.TrimSpace(result.Content))
	}
	return strings.Join(parts, "\n\n")
}
