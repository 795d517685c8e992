package bot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/weibaohui/insurebot/internal/model"
)

const msgWelcome = "🚗 Welcome to our car insurance service!\n\n" +
	"To get a policy, I'll need:\n" +
	"📋 Photo of your passport\n" +
	"🚙 Photo of the vehicle registration document\n\n" +
	"Please send a photo of your passport."

const msgVehicleInstruction = "📋 Please send a photo of your vehicle registration document:\n\n" +
	"• If your document has two sides - first send the front side (vehicle information), then the back side (owner information)\n" +
	"• If your document is single-sided - send one photo\n\n" +
	"After uploading all photos, type 'done' to continue."

const msgFrontProcessed = "✅ Front side of the technical passport has been processed.\n\n" +
	"If your document has a back side with owner information - please upload it.\n" +
	"If your document is single-sided - type 'done' to continue."

const msgBackProcessed = "✅ Back side of the technical passport has been processed.\n\n" +
	"Type 'done' to complete document processing."

const (
	msgResetDone       = "✅ Your status has been successfully reset. Let's start over. Please send your passport data"
	msgAskIdentity     = "Please send a photo of your passport."
	msgIdentityFailed  = "❌ I couldn't read your passport. Please send a clearer photo of the passport page."
	msgIdentityError   = "An error occurred while processing your passport. Please try again."
	msgVehicleNoFront  = "📋 I haven't received your vehicle registration document yet. Please send a photo of the front side first."
	msgVehicleFailed   = "❌ I couldn't read this side of the document. Please try sending the photo again."
	msgVehicleError    = "❌ An error occurred while processing the document. Please try sending the photo again."
	msgStartOver       = "Okay, let's start over. Please upload photos of your documents."
	msgConfirmReprompt = "Please confirm the information by typing 'Yes'. If you want to start over, type 'No'."
	msgPriceReprompt   = "To continue, type 'Confirm'."
	msgUnknownState    = "⚠️ Something went wrong with your session. Please send /reset to start over."
	msgGenericError    = "⚠️ An unexpected error occurred. Please try again or send /reset to start over."
	msgQuestionError   = "Sorry, I can't process your question right now. Please follow the bot instructions."
)

func identitySummary(fields map[string]string) string {
	return fmt.Sprintf("📄 *Passport*\n"+
		"- Name: %s %s\n"+
		"- Passport: %s\n"+
		"- Date of birth: %s\n\n"+
		"Now send a photo of the vehicle registration document (car type/manufacturer information side).",
		fields["FirstName"], fields["LastName"], fields["PassportNumber"], fields["BirthDate"])
}

func priceMessage(price float64, currency string) string {
	return fmt.Sprintf("Great! Insurance cost: %s %s.\nDo you agree? Confirm your purchase by typing 'Confirm'.",
		formatAmount(price), currency)
}

func completedMessage(policyNumber string) string {
	return fmt.Sprintf("✅ Your insurance policy has already been issued (policy number %s). If you have any questions, write to us!", policyNumber)
}

// issuedMessage 只含摘要，保单正文以文件发送
func issuedMessage(policyNumber string, price float64, currency string) string {
	return fmt.Sprintf("🎉 Congratulations! Your policy has been issued.\n"+
		"Policy number: %s\n"+
		"Premium: %s %s\n\n"+
		"The full policy document is attached below.",
		policyNumber, formatAmount(price), currency)
}

// Telegram 单条消息最多 4096 个字符，emoji 按 UTF-16 计数会占两个，留出余量
const maxMessageRunes = 4000

// splitText 按单条消息上限切分，尽量在换行处断开
func splitText(text string, limit int) []string {
	runes := []rune(text)
	var parts []string
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func formatAmount(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

// formatFields 每行 "• Key: Value"，按键排序
func formatFields(fields map[string]string, empty string) string {
	if len(fields) == 0 {
		return empty
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("• %s: %s", k, fields[k]))
	}
	return strings.Join(lines, "\n")
}

func fieldsOf(data *model.ExtractedData) map[string]string {
	if data == nil {
		return nil
	}
	return data.Fields
}

func formatPassportInfo(data *model.ExtractedData) string {
	return formatFields(fieldsOf(data), "❌ Passport details not found.")
}

func formatCarInfo(data *model.ExtractedData) string {
	return formatFields(fieldsOf(data), "❌ Vehicle data not recognized.")
}

func formatOwnerInfo(data *model.ExtractedData) string {
	return formatFields(fieldsOf(data), "❌ Owner information not recognized.")
}

func vehicleExtractedMessage(data *model.ExtractedData) string {
	return "✅ Vehicle information extracted:\n\n🚗 *Vehicle details:*\n" + formatCarInfo(data)
}

func ownerExtractedMessage(data *model.ExtractedData, sameDocument bool) string {
	header := "✅ Owner information extracted:"
	if sameDocument {
		header = "✅ Owner information extracted from the same document:"
	}
	return header + "\n\n👤 *Owner details:*\n" + formatOwnerInfo(data)
}

// fullSummary 汇总身份、车辆与登记信息
func fullSummary(sess *model.Session) string {
	var b strings.Builder
	b.WriteString("📋 *Document Summary:*\n\n")
	b.WriteString("👤 *Passport Details:*\n")
	b.WriteString(formatPassportInfo(sess.ExtractedIdentity) + "\n\n")
	b.WriteString("🚗 *Vehicle Information:*\n")
	b.WriteString(formatCarInfo(sess.ExtractedVehicleFront) + "\n\n")
	b.WriteString("📝 *Registration Details:*\n")
	b.WriteString(formatOwnerInfo(sess.ExtractedVehicleBack) + "\n\n")
	b.WriteString("✅ *All documents have been processed. Do you confirm the entered information?*\n\n")
	b.WriteString("Please confirm the details by writing 'Yes'.\n")
	b.WriteString("Or write 'No' if you want to start over.")
	return b.String()
}
