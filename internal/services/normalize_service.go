// internal/services/normalize_service.go
package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/Corphon/ScriptRelayMCP/internal/jsonval"
	"github.com/Corphon/ScriptRelayMCP/internal/models"
)

// NormalizeService 将上游webhook的任意JSON响应归一化为标准结构
// 纯计算服务，不做任何I/O，同一输入产生同一输出
type NormalizeService struct{}

// NewNormalizeService 创建归一化服务
func NewNormalizeService() *NormalizeService {
	return &NormalizeService{}
}

// fieldRule 单条字段提取规则
// 每个字段对应一张有序规则表，命中即停，替代散落各处的取值级联
type fieldRule struct {
	name    string
	extract func(root jsonval.Value) (jsonval.Value, bool)
}

// 字幕字段规则表，按优先级排列
var transcriptRules = []fieldRule{
	{"top-level", func(root jsonval.Value) (jsonval.Value, bool) {
		return topLevelFirst(root, "transcript", "text", "transcription", "transcript_text")
	}},
	{"wrapped", func(root jsonval.Value) (jsonval.Value, bool) {
		return wrappedKey(root, "transcript")
	}},
	{"deep-find", func(root jsonval.Value) (jsonval.Value, bool) {
		return deepFindFirst(root, []string{"transcript", "text", "transcription"})
	}},
	{"openai-shape", func(root jsonval.Value) (jsonval.Value, bool) {
		s, ok := openAIContent(root)
		if !ok {
			return nil, false
		}
		return s, true
	}},
}

// 脚本字段规则表
var scriptRules = []fieldRule{
	{"top-level", func(root jsonval.Value) (jsonval.Value, bool) {
		return topLevelFirst(root, "scripts", "generatedScripts", "outputs")
	}},
	{"wrapped", func(root jsonval.Value) (jsonval.Value, bool) {
		return wrappedKey(root, "scripts")
	}},
	{"deep-find", func(root jsonval.Value) (jsonval.Value, bool) {
		return deepFindFirst(root, []string{"scripts", "generatedScripts", "ideas", "outline", "sections", "bullets"})
	}},
}

// 兜底搜索使用的扩展键列表
var fallbackScriptKeys = []string{"scripts", "generatedScripts", "ideas", "outline", "sections", "bullets", "items", "points"}

// 信封解包候选键，按优先级排列
var envelopeKeys = []string{"json", "data", "payload", "body"}

// 兜底脚本字符串的切分规则: 空行、编号行首、项目符号行首
var listSplitRe = regexp.MustCompile(`(?m)\n\s*\n|^\d+\.|^-\s`)

// Normalize 把任意JSON值归一化为 {transcript, scripts[]}
func (s *NormalizeService) Normalize(raw jsonval.Value) *models.NormalizedResult {
	root := unwrapEnvelope(raw)

	result := &models.NormalizedResult{
		Scripts: []models.ScriptCard{},
	}

	// 第一步: 字幕字段级联提取
	if v, ok := extractFirst(root, transcriptRules); ok {
		result.Transcript = ToCleanText(v)
	}

	// 第二步: 脚本字段级联提取 + 形状归一化
	if v, ok := extractFirst(root, scriptRules); ok {
		result.Scripts = normalizeScripts(v)
	}

	// 第三步: 字幕仍为空时，取全结构中最长的"像句子"的字符串
	if result.Transcript == "" {
		result.Transcript = ToCleanText(longestSentence(root))
	}

	// 第四步: 脚本仍为空时，用扩展键列表再搜一轮
	if len(result.Scripts) == 0 {
		result.Scripts = fallbackScripts(root)
	}

	if result.Scripts == nil {
		result.Scripts = []models.ScriptCard{}
	}

	return result
}

// extractFirst 按规则表顺序提取，命中第一条即返回
func extractFirst(root jsonval.Value, rules []fieldRule) (jsonval.Value, bool) {
	for _, rule := range rules {
		if v, ok := rule.extract(root); ok {
			return v, true
		}
	}
	return nil, false
}

// unwrapEnvelope 解开列表信封
// 规则: 根是非空数组且首元素为对象、携带非空的json/data/payload/body键时，
// 以该键的值作为归一化输入；只解一层，不递归
func unwrapEnvelope(raw jsonval.Value) jsonval.Value {
	arr, ok := raw.(*jsonval.Array)
	if !ok || arr.Len() == 0 {
		return raw
	}
	first, ok := arr.Items[0].(*jsonval.Object)
	if !ok {
		return raw
	}
	for _, key := range envelopeKeys {
		if v, ok := first.Get(key); ok && truthy(v) {
			return v
		}
	}
	return raw
}

// truthy 判断值是否算"命中"
// 空字符串、false、数字零、null都视为未命中；空对象和空数组视为命中
func truthy(v jsonval.Value) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case float64:
		return t != 0
	default:
		return true
	}
}

// topLevelFirst 按顺序检查顶层键，返回第一个命中的值
func topLevelFirst(root jsonval.Value, keys ...string) (jsonval.Value, bool) {
	obj, ok := root.(*jsonval.Object)
	if !ok {
		return nil, false
	}
	for _, key := range keys {
		if v, exists := obj.Get(key); exists && truthy(v) {
			return v, true
		}
	}
	return nil, false
}

// wrappedKey 检查data/result包装层下的指定键
func wrappedKey(root jsonval.Value, key string) (jsonval.Value, bool) {
	obj, ok := root.(*jsonval.Object)
	if !ok {
		return nil, false
	}
	for _, wrapper := range []string{"data", "result"} {
		w, exists := obj.Get(wrapper)
		if !exists {
			continue
		}
		inner, ok := w.(*jsonval.Object)
		if !ok {
			continue
		}
		if v, exists := inner.Get(key); exists && truthy(v) {
			return v, true
		}
	}
	return nil, false
}

// deepFindFirst 深度优先搜索任意一个候选键
// 显式栈 + 按对象身份去重，环状结构也能终止；每个对象只访问一次
func deepFindFirst(root jsonval.Value, keys []string) (jsonval.Value, bool) {
	visited := make(map[interface{}]bool)
	stack := []jsonval.Value{root}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch t := cur.(type) {
		case *jsonval.Object:
			if visited[t] {
				continue
			}
			visited[t] = true
			for _, key := range keys {
				if v, exists := t.Get(key); exists && truthy(v) {
					return v, true
				}
			}
			for _, key := range t.Keys() {
				v, _ := t.Get(key)
				if isContainer(v) {
					stack = append(stack, v)
				}
			}
		case *jsonval.Array:
			if visited[t] {
				continue
			}
			visited[t] = true
			for _, item := range t.Items {
				if isContainer(item) {
					stack = append(stack, item)
				}
			}
		}
	}

	return nil, false
}

func isContainer(v jsonval.Value) bool {
	switch v.(type) {
	case *jsonval.Object, *jsonval.Array:
		return true
	}
	return false
}

// collectStrings 收集整个结构中可达的所有字符串值
// 与deepFindFirst相同的遍历方式，同样防环
func collectStrings(root jsonval.Value) []string {
	visited := make(map[interface{}]bool)
	stack := []jsonval.Value{root}
	var strs []string

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch t := cur.(type) {
		case string:
			strs = append(strs, t)
		case *jsonval.Object:
			if visited[t] {
				continue
			}
			visited[t] = true
			for _, key := range t.Keys() {
				v, _ := t.Get(key)
				stack = append(stack, v)
			}
		case *jsonval.Array:
			if visited[t] {
				continue
			}
			visited[t] = true
			for _, item := range t.Items {
				stack = append(stack, item)
			}
		}
	}

	return strs
}

// openAIContent 提取OpenAI聊天补全形状的内容
func openAIContent(root jsonval.Value) (string, bool) {
	content, ok := deepFindFirst(root, []string{"content", "message", "response"})
	if ok {
		if s, isStr := content.(string); isStr {
			return s, true
		}
		if obj, isObj := content.(*jsonval.Object); isObj {
			if v, exists := obj.Get("content"); exists {
				if s, isStr := v.(string); isStr && s != "" {
					return s, true
				}
			}
			if s, found := choiceContent(obj); found {
				return s, true
			}
		}
	}

	// 顶层choices[0].message.content
	if obj, isObj := root.(*jsonval.Object); isObj {
		if s, found := choiceContent(obj); found {
			return s, true
		}
	}

	return "", false
}

// choiceContent 取choices[0].message.content
func choiceContent(obj *jsonval.Object) (string, bool) {
	v, exists := obj.Get("choices")
	if !exists {
		return "", false
	}
	arr, ok := v.(*jsonval.Array)
	if !ok || arr.Len() == 0 {
		return "", false
	}
	first, ok := arr.Items[0].(*jsonval.Object)
	if !ok {
		return "", false
	}
	msg, exists := first.Get("message")
	if !exists {
		return "", false
	}
	msgObj, ok := msg.(*jsonval.Object)
	if !ok {
		return "", false
	}
	c, exists := msgObj.Get("content")
	if !exists {
		return "", false
	}
	s, ok := c.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// firstTruthy 按顺序取对象的第一个命中键
func firstTruthy(obj *jsonval.Object, keys ...string) (jsonval.Value, bool) {
	for _, key := range keys {
		if v, exists := obj.Get(key); exists && truthy(v) {
			return v, true
		}
	}
	return nil, false
}

// normalizeScripts 把提取到的脚本值归一化为卡片序列
func normalizeScripts(input jsonval.Value) []models.ScriptCard {
	cards := []models.ScriptCard{}

	switch t := input.(type) {
	case string:
		if t == "" {
			return cards
		}
		return append(cards, models.ScriptCard{Title: "Script 1", Content: ToCleanText(t)})

	case *jsonval.Array:
		for i, item := range t.Items {
			idx := i + 1
			switch el := item.(type) {
			case string:
				cards = append(cards, models.ScriptCard{
					Title:   fmt.Sprintf("Script %d", idx),
					Content: ToCleanText(el),
				})
			case *jsonval.Object:
				title := fmt.Sprintf("Script %d", idx)
				if v, found := firstTruthy(el, "title", "name"); found {
					title = ToCleanText(v)
				}
				var content string
				if v, found := firstTruthy(el, "content", "body", "text", "script"); found {
					content = ToCleanText(v)
				} else {
					// 没有可用的内容字段时清洗整个元素
					content = ToCleanText(el)
				}
				cards = append(cards, models.ScriptCard{Title: title, Content: content})
			default:
				cards = append(cards, models.ScriptCard{
					Title:   fmt.Sprintf("Script %d", idx),
					Content: ToCleanText(el),
				})
			}
		}
		return cards

	case *jsonval.Object:
		// 键值映射: 每个键一张卡片，保持键顺序
		for i, key := range t.Keys() {
			title := ToCleanText(key)
			if title == "" {
				title = fmt.Sprintf("Script %d", i+1)
			}
			v, _ := t.Get(key)
			cards = append(cards, models.ScriptCard{Title: title, Content: ToCleanText(v)})
		}
		return cards

	default:
		return cards
	}
}

// longestSentence 在所有字符串值中挑出超过8个词的最长者
// 长度相同时保留先遇到的那个（平手顺序本身未被契约约束）
func longestSentence(root jsonval.Value) jsonval.Value {
	var longest string
	for _, s := range collectStrings(root) {
		trimmed := strings.TrimSpace(s)
		if len(strings.Split(trimmed, " ")) <= 8 {
			continue
		}
		if len(trimmed) > len(longest) {
			longest = trimmed
		}
	}
	if longest == "" {
		return nil
	}
	return longest
}

// fallbackScripts 脚本为空时的兜底搜索
func fallbackScripts(root jsonval.Value) []models.ScriptCard {
	possible, ok := deepFindFirst(root, fallbackScriptKeys)
	if !ok {
		return []models.ScriptCard{}
	}

	cards := []models.ScriptCard{}
	switch t := possible.(type) {
	case *jsonval.Array:
		for i, item := range t.Items {
			var content string
			if obj, isObj := item.(*jsonval.Object); isObj {
				if v, found := firstTruthy(obj, "content", "text"); found {
					content = ToCleanText(v)
				} else {
					content = ToCleanText(obj)
				}
			} else {
				content = ToCleanText(item)
			}
			// 清洗后为空的卡片直接丢弃，编号保留原始位置
			if content == "" {
				continue
			}
			cards = append(cards, models.ScriptCard{
				Title:   fmt.Sprintf("Script %d", i+1),
				Content: content,
			})
		}
	case string:
		n := 0
		for _, part := range listSplitRe.Split(t, -1) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n++
			cards = append(cards, models.ScriptCard{
				Title:   fmt.Sprintf("Script %d", n),
				Content: ToCleanText(part),
			})
		}
	}

	return cards
}

// 清洗用的正则，包级编译一次
var (
	punctRe   = regexp.MustCompile(`[{}\[\]"\\]`)
	colonRe   = regexp.MustCompile(`\s*:\s*`)
	commaRe   = regexp.MustCompile(`\s+,\s*`)
	newlineRe = regexp.MustCompile(`\n{3,}`)
)

// ToCleanText 把任意值转成可读文本
// 非字符串先字符串化（数组元素之间空一行，其余取JSON字面量），
// 再去掉JSON标点、收紧冒号逗号间距、压缩连续空行并修剪首尾空白。
// 该变换是幂等的: 清洗已清洗过的文本得到相同结果
func ToCleanText(v jsonval.Value) string {
	if v == nil {
		return ""
	}

	var text string
	switch t := v.(type) {
	case string:
		text = t
	case *jsonval.Array:
		parts := make([]string, 0, len(t.Items))
		for _, item := range t.Items {
			if s, ok := item.(string); ok {
				parts = append(parts, s)
			} else {
				parts = append(parts, jsonval.Encode(item))
			}
		}
		text = strings.Join(parts, "\n\n")
	default:
		text = jsonval.Encode(t)
	}

	text = punctRe.ReplaceAllString(text, "")
	text = colonRe.ReplaceAllString(text, ": ")
	text = commaRe.ReplaceAllString(text, ", ")
	text = newlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
