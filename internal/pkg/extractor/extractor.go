// Package extractor 把识别服务返回的嵌套 JSON 树或行式文本展开成扁平的字段表
package extractor

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"k8s.io/klog/v2"
)

// Source 字段来源
type Source string

const (
	SourceTree Source = "tree"
	SourceText Source = "text"
	SourceNone Source = "none"
)

type Result struct {
	Fields map[string]string
	Source Source
}

// Parsed 树解析成功，或文本兜底至少产出一个字段
func (r Result) Parsed() bool {
	return r.Source == SourceTree || (r.Source == SourceText && len(r.Fields) > 0)
}

// ExtractFields 只返回字段表
func ExtractFields(raw []byte) map[string]string {
	return Extract(raw).Fields
}

// Extract 从原始响应中提取字段，任何输入都不会返回错误
func Extract(raw []byte) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("字段提取发生 panic: %v", r)
			result = Result{Fields: map[string]string{}, Source: SourceNone}
		}
	}()

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Result{Fields: map[string]string{}, Source: SourceNone}
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		root, err := decode(trimmed)
		if err == nil {
			fields := make(map[string]string)
			flatten(predictionNode(root), "", fields)
			return Result{Fields: fields, Source: SourceTree}
		}
		klog.V(6).Infof("响应不是合法 JSON，改用文本解析: %v", err)
	}

	return Result{Fields: parseLines(trimmed), Source: SourceText}
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	// 尾部还有内容视为非法
	if dec.More() {
		return nil, fmt.Errorf("unexpected trailing data at offset %d", dec.InputOffset())
	}
	return root, nil
}

// predictionNode 优先使用 document.inference.prediction 节点
func predictionNode(root any) any {
	node := root
	for _, key := range []string{"document", "inference", "prediction"} {
		obj, ok := node.(map[string]any)
		if !ok {
			return root
		}
		next, ok := obj[key]
		if !ok {
			return root
		}
		node = next
	}
	return node
}

func flatten(node any, path string, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		if scalar, ok := wrappedValue(v); ok {
			record(scalar, path, out)
			return
		}
		for name, child := range v {
			flatten(child, joinPath(path, name), out)
		}
	case []any:
		for i, child := range v {
			flatten(child, fmt.Sprintf("%s[%d]", path, i), out)
		}
	default:
		record(v, path, out)
	}
}

// wrappedValue 识别 {"value": ..., "confidence": ...} 形式的字段包装
func wrappedValue(obj map[string]any) (any, bool) {
	value, ok := obj["value"]
	if !ok {
		return nil, false
	}
	switch value.(type) {
	case map[string]any, []any:
		return nil, false
	}
	return value, true
}

func record(v any, path string, out map[string]string) {
	if path == "" {
		return
	}
	switch val := v.(type) {
	case string:
		if s := strings.TrimSpace(val); s != "" {
			out[path] = s
		}
	case json.Number:
		out[path] = val.String()
	case bool:
		out[path] = strconv.FormatBool(val)
	case nil:
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// parseLines 解析 ":name:" / ":value: xxx" 交替出现的文本格式
func parseLines(data []byte) map[string]string {
	fields := make(map[string]string)
	var current string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, ":value:"):
			if current == "" {
				continue
			}
			value := strings.TrimSpace(line[len(":value:"):])
			if value != "" && value != "null" && value != "N/A" {
				fields[current] = value
			}
			current = ""
		case isFieldHeader(line):
			current = line[1 : len(line)-1]
		}
	}
	if err := scanner.Err(); err != nil {
		klog.Warningf("文本解析中断: %v", err)
	}
	return fields
}

func isFieldHeader(line string) bool {
	if len(line) < 3 || line[0] != ':' || line[len(line)-1] != ':' {
		return false
	}
	return !strings.ContainsAny(line, " \t")
}
