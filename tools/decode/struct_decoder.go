package decode

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Frame 是一条已解析但尚未按 type 落到具体结构体的 JSON 帧。
type Frame map[string]any

// ParseFrame 解析 websocket 文本帧为通用 map。
func ParseFrame(data []byte) (Frame, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("parse frame: not an object")
	}
	return Frame(m), nil
}

// Type 返回帧的 "type" 字段；缺失或非字符串时返回空串。
func (f Frame) Type() string {
	s, _ := f["type"].(string)
	return s
}

// DecodeMap 将动态 map 解码到任意结构体 T，字段读取使用 `json` tag。
// 宽松解码：浏览器端可能把数字发成 "123" 或 1.0。
func DecodeMap[T any](m map[string]any) (*T, error) {
	if m == nil {
		return nil, fmt.Errorf("map is nil")
	}

	var out T
	decCfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			floatToIntHook(),
		),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}

	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode struct: %w", err)
	}
	return &out, nil
}

// floatToIntHook：把 float64 自动转为 int / int32 / int64。
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}
