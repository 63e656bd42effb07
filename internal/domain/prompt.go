package domain

import (
	"fmt"
	"strings"
)

// CleanModelText は、モデルの生テキストを整形します。
// 前後の空白を除去し、先頭と末尾の引用符をそれぞれ1文字だけ取り除きます。
func CleanModelText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, `"`)
	text = strings.TrimSuffix(text, `"`)
	if text == "" {
		return "", fmt.Errorf("整形後のテキストが空です: %w", ErrEmptyOutput)
	}
	return text, nil
}
