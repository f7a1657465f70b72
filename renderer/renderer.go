package renderer

import "github.com/ByLCY/tweetstyle/layout"

// Renderer 将布局结果输出为最终文件，例如 PDF 或终端文本。
// Render 返回生成的数据以及可能的错误。
type Renderer interface {
	Render(result *layout.Result) ([]byte, error)
}

// Backend 同时负责测量与输出；同一后端的度量与绘制保持一致。
type Backend interface {
	Renderer
	layout.Typesetter
}
