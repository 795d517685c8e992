package utils

import (
	"encoding/json"
	"strings"

	"k8s.io/klog/v2"
)

func ToJSON(v any) string {
	jsonData, err := json.Marshal(v)
	if err != nil {
		klog.Errorf("JSON序列化失败: %v", err)
		return ""
	}
	return string(jsonData)
}

// TrimCodeFence 去掉模型输出外层的 ``` 代码块，没有代码块时原样返回（去首尾空白）
func TrimCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	body := trimmed[3:]
	// 跳过语言标识，例如 ```markdown
	newline := strings.IndexByte(body, '\n')
	if newline < 0 {
		return trimmed
	}
	body = body[newline+1:]

	end := strings.LastIndex(body, "```")
	if end < 0 {
		klog.V(6).Infof("[TrimCodeFence] 代码块未闭合，返回原始内容")
		return trimmed
	}
	return strings.TrimSpace(body[:end])
}
