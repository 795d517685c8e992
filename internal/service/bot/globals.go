package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/weibaohui/insurebot/internal/model"
	"k8s.io/klog/v2"
)

const resetCommand = "/reset"

// ResetHandler 处理 /reset，以及确认阶段的 "no"
type ResetHandler struct {
	transport Transport
}

func NewResetHandler(transport Transport) *ResetHandler {
	return &ResetHandler{transport: transport}
}

func (h *ResetHandler) Name() string { return "reset" }

func (h *ResetHandler) HandleCommand(ctx context.Context, sess *model.Session, msg InboundMessage) (bool, model.ConversationState, error) {
	text := msg.Normalized()
	if text != resetCommand && !(sess.State == model.StateWaitingConfirm && text == keywordNo) {
		return false, sess.State, nil
	}

	sess.Reset()
	if err := h.transport.SendText(ctx, sess.ChatID, msgResetDone); err != nil {
		klog.Errorf("发送重置消息失败: chatID=%d, error=%v", sess.ChatID, err)
	}
	klog.V(6).Infof("会话已重置: chatID=%d", sess.ChatID)
	return true, model.StateEntry, nil
}

// questionIgnored 这些输入交给状态处理器
var questionIgnored = map[string]bool{
	keywordYes:  true,
	keywordNo:   true,
	keywordDone: true,
}

// QuestionHandler 回答流程之外的自由提问，不改变状态
type QuestionHandler struct {
	transport Transport
	generator TextGenerator
}

func NewQuestionHandler(transport Transport, generator TextGenerator) *QuestionHandler {
	return &QuestionHandler{transport: transport, generator: generator}
}

func (h *QuestionHandler) Name() string { return "question" }

func (h *QuestionHandler) HandleCommand(ctx context.Context, sess *model.Session, msg InboundMessage) (bool, model.ConversationState, error) {
	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "",
		strings.HasPrefix(text, "/"),
		msg.HasAttachment || msg.HasImage(),
		questionIgnored[normalize(text)],
		isConfirmKeyword(text),
		sess.State == model.StateEntry,
		sess.State == model.StateError:
		return false, sess.State, nil
	}

	answer := h.generator.Generate(ctx, questionPrompt(text, sess.State), questionContext(sess.State))
	if answer == "" {
		answer = msgQuestionError
	}
	if err := h.transport.SendText(ctx, sess.ChatID, answer); err != nil {
		klog.Errorf("发送回答失败: chatID=%d, error=%v", sess.ChatID, err)
	}
	klog.V(6).Infof("自由提问已回答: chatID=%d, state=%s", sess.ChatID, sess.State)
	return true, sess.State, nil
}

func questionContext(state model.ConversationState) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant for a car insurance bot.\n")
	b.WriteString("Answer briefly, friendly and to the point.\n")
	b.WriteString("Always guide the user to complete the current step of the process.\n")
	b.WriteString("Keep responses under 100 words.\n")

	switch state {
	case model.StateEntry, model.StateWaitingIdentityDoc:
		b.WriteString("Current step: waiting for passport data upload.\n")
		b.WriteString("After answering the question, gently remind the user to send their passport photo.\n")
	case model.StateWaitingVehicleDoc:
		b.WriteString("Current step: waiting for car document upload.\n")
		b.WriteString("After answering the question, gently remind the user to send their car documents.\n")
	case model.StateWaitingConfirm:
		b.WriteString("Current step: waiting for user to confirm their data.\n")
		b.WriteString("After answering the question, remind the user to confirm or correct their data.\n")
	case model.StatePriceConfirmation:
		b.WriteString("Current step: waiting for price confirmation and policy creation.\n")
		b.WriteString("After answering the question, remind the user to make a decision about the policy.\n")
	case model.StateCompleted:
		b.WriteString("Current step: the policy has already been issued.\n")
		b.WriteString("Answer questions about the issued policy.\n")
	default:
		b.WriteString("Help the user with their question and guide them to start the process with /reset.\n")
	}
	return b.String()
}

func questionPrompt(question string, state model.ConversationState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User asks: %q\n\n", question)
	b.WriteString("Response requirements:\n")
	b.WriteString("1. Answer the question briefly and clearly\n")
	b.WriteString("2. Explain why the current step is needed (if relevant)\n")
	b.WriteString("3. Gently guide to complete the current action\n")
	b.WriteString("4. Use friendly tone\n")
	b.WriteString("5. Maximum 2-3 sentences\n")

	switch state {
	case model.StateEntry, model.StateWaitingIdentityDoc:
		b.WriteString("6. End with a phrase about needing to send passport photo\n")
	case model.StateWaitingVehicleDoc:
		b.WriteString("6. End with a phrase about needing to send car documents\n")
	case model.StateWaitingConfirm:
		b.WriteString("6. End with a phrase about needing to confirm the data\n")
	case model.StatePriceConfirmation:
		b.WriteString("6. End with a phrase about needing to make a decision about the policy\n")
	}
	return b.String()
}
