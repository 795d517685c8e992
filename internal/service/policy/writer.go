// Package policy 生成保单正文
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/weibaohui/insurebot/internal/model"
	"github.com/weibaohui/insurebot/internal/utils"
	"k8s.io/klog/v2"
)

const InsufficientDataText = "Insufficient data to generate a policy."

// TextGenerator 文本生成，失败时自行降级为致歉文案
type TextGenerator interface {
	Generate(ctx context.Context, prompt, systemContext string) string
}

// Terms 出单时的条款参数
type Terms struct {
	PolicyNumber string
	Price        float64
	Currency     string
}

type Writer struct {
	generator TextGenerator
}

func NewWriter(generator TextGenerator) *Writer {
	return &Writer{generator: generator}
}

// Write 根据会话中的证件数据生成保单正文；缺少证件数据时不调用模型
func (w *Writer) Write(ctx context.Context, sess *model.Session, terms Terms) string {
	personal := describe(sess.ExtractedIdentity)
	vehicle := describe(sess.ExtractedVehicleFront)
	if owner := describe(sess.ExtractedVehicleBack); owner != "" && vehicle != "" {
		vehicle += "; " + owner
	}

	if personal == "" || vehicle == "" {
		klog.Warningf("生成保单缺少证件数据: chatID=%d", sess.ChatID)
		return InsufficientDataText
	}

	text := utils.TrimCodeFence(w.generator.Generate(ctx, buildPrompt(personal, vehicle, terms), policyContext))
	klog.V(6).Infof("保单正文已生成: chatID=%d, policy=%s, length=%d", sess.ChatID, terms.PolicyNumber, len(text))
	return text
}

const policyContext = `You are a professional insurance policy document generator.
Generate formal, comprehensive car insurance policy documents.
Use professional insurance terminology and standard policy structure.
Include all necessary legal disclaimers and coverage details.
Make the document look authentic and complete.`

func buildPrompt(personal, vehicle string, terms Terms) string {
	var b strings.Builder
	b.WriteString("Please generate a complete car insurance policy document based on the following data:\n\n")
	fmt.Fprintf(&b, "Passport/Personal Data: %s\n", personal)
	fmt.Fprintf(&b, "Vehicle Data: %s\n", vehicle)
	fmt.Fprintf(&b, "Policy Number: %s\n", terms.PolicyNumber)
	fmt.Fprintf(&b, "Premium: %.2f %s\n\n", terms.Price, terms.Currency)
	b.WriteString("Requirements:\n")
	b.WriteString("- Make the text formal and professional\n")
	b.WriteString("- Include policy terms, coverage details, and important information\n")
	b.WriteString("- Use only the information provided - do not ask for additional data\n")
	b.WriteString("- Fill all fields with appropriate data based on provided information\n")
	b.WriteString("- The only field that should remain blank is the signature field\n")
	b.WriteString("- Include policy number, effective dates, premium amount, and coverage limits\n")
	b.WriteString("- Add standard insurance terms and conditions\n")
	return b.String()
}

// describe 把字段表拼成 "k: v, k: v"，键排序保证输出稳定
func describe(data *model.ExtractedData) string {
	if data == nil || len(data.Fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(data.Fields))
	for k := range data.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+data.Fields[k])
	}
	return strings.Join(parts, ", ")
}
