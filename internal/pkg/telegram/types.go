package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ImageFileID 返回消息中图片的 file_id：照片取最大尺寸，文档要求 image/* 类型
func ImageFileID(m *tgbotapi.Message) string {
	if m == nil {
		return ""
	}
	if len(m.Photo) > 0 {
		best := m.Photo[0]
		for _, p := range m.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		return best.FileID
	}
	if m.Document != nil && strings.HasPrefix(m.Document.MimeType, "image/") {
		return m.Document.FileID
	}
	return ""
}

// HasAttachment 是否携带照片或文件
func HasAttachment(m *tgbotapi.Message) bool {
	return m != nil && (len(m.Photo) > 0 || m.Document != nil)
}
