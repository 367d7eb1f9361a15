package resource

import (
	"sort"
	"strings"
)

// Scope は現在のフェッチが対象とするサブセットを決定するパラメータ集合。
// そのままAPIのフィルタとして送信される。
type Scope map[string]string

// Key はスコープの正規化された識別子を返す。
// 同一のパラメータ集合は常に同一のキーになる（順序不変）。
// 確定済みフェッチのスコープ記録と、実変化の検出に使用する。
func (s Scope) Key() string {
	if len(s) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s[k])
	}
	return b.String()
}
