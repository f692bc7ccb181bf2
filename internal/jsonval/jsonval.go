// internal/jsonval/jsonval.go
package jsonval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Value 表示一个解码后的JSON值
// 可能的具体类型: nil, bool, string, json.Number, *Object, *Array
type Value = interface{}

// Object 是保留键顺序的JSON对象
// n8n返回的scripts可能是键值映射，卡片顺序必须与键顺序一致，
// 因此不能使用map[string]interface{}解码
type Object struct {
	keys   []string
	values map[string]Value
}

// NewObject 创建空对象
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Set 设置键值，首次出现的键追加到键序列末尾
func (o *Object) Set(key string, v Value) *Object {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
	return o
}

// Get 按键取值
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Keys 返回按插入顺序排列的键
func (o *Object) Keys() []string {
	return o.keys
}

// Len 返回键数量
func (o *Object) Len() int {
	return len(o.keys)
}

// Array 是JSON数组
type Array struct {
	Items []Value
}

// NewArray 创建数组
func NewArray(items ...Value) *Array {
	return &Array{Items: items}
}

// Append 追加元素
func (a *Array) Append(v Value) *Array {
	a.Items = append(a.Items, v)
	return a
}

// Len 返回元素数量
func (a *Array) Len() int {
	return len(a.Items)
}

// Decode 解码JSON字节为Value
// 使用token流解码以保留对象键顺序，数字保留原始字面量
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}

	// 检查尾部多余内容
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("JSON尾部存在多余内容")
	}

	return v, nil
}

// decodeValue 解码单个JSON值
func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("对象键类型无效: %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			// 消费 '}'
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := NewArray()
			for dec.More() {
				val, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				arr.Append(val)
			}
			// 消费 ']'
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("意外的JSON分隔符: %v", t)
	default:
		// string / json.Number / bool / nil
		return tok, nil
	}
}

// Encode 将Value编码为紧凑JSON文本
// 对象键按插入顺序输出；已访问过的容器输出为null，防止循环引用导致死循环
func Encode(v Value) string {
	var buf bytes.Buffer
	encodeValue(&buf, v, make(map[interface{}]bool))
	return buf.String()
}

func encodeValue(buf *bytes.Buffer, v Value, visited map[interface{}]bool) {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		b, err := json.Marshal(t)
		if err != nil {
			buf.WriteString(`""`)
			return
		}
		buf.Write(b)
	case json.Number:
		buf.WriteString(string(t))
	case float64:
		b, _ := json.Marshal(t)
		buf.Write(b)
	case int:
		fmt.Fprintf(buf, "%d", t)
	case *Object:
		if visited[t] {
			buf.WriteString("null")
			return
		}
		visited[t] = true
		buf.WriteByte('{')
		for i, key := range t.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, _ := json.Marshal(key)
			buf.Write(kb)
			buf.WriteByte(':')
			encodeValue(buf, t.values[key], visited)
		}
		buf.WriteByte('}')
	case *Array:
		if visited[t] {
			buf.WriteString("null")
			return
		}
		visited[t] = true
		buf.WriteByte('[')
		for i, item := range t.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeValue(buf, item, visited)
		}
		buf.WriteByte(']')
	default:
		// 未知类型，尽力而为
		b, err := json.Marshal(t)
		if err != nil {
			buf.WriteString("null")
			return
		}
		buf.Write(b)
	}
}

// MarshalJSON 实现json.Marshaler，保留键顺序
func (o *Object) MarshalJSON() ([]byte, error) {
	return []byte(Encode(o)), nil
}

// MarshalJSON 实现json.Marshaler
func (a *Array) MarshalJSON() ([]byte, error) {
	return []byte(Encode(a)), nil
}
