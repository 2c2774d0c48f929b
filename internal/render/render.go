// Package render сопоставляет backend-идентификаторы конфигов рендерерам.
package render

import (
	"fmt"
	"sort"

	"strata/internal/render/uci"
)

// Backend'ы различаются диалектом NetJSON; openwisp — надмножество openwrt,
// рендерится тем же генератором UCI.
var renderers = map[string]func(map[string]any, uci.Options) ([]uci.File, error){
	"netjson/openwrt":  uci.RenderAll,
	"netjson/openwisp": uci.RenderAll,
}

func Supported(backend string) bool {
	_, ok := renderers[backend]
	return ok
}

func Backends() []string {
	out := make([]string, 0, len(renderers))
	for k := range renderers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Files рендерит смёрженное NetJSON-дерево в файлы артефакта.
func Files(backend string, tree map[string]any, opts uci.Options) ([]uci.File, error) {
	fn, ok := renderers[backend]
	if !ok {
		return nil, fmt.Errorf("unsupported backend %q", backend)
	}
	return fn(tree, opts)
}
