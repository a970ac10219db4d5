package compression

import "io"

// Compressor 定义压缩器接口
type Compressor interface {
	Compress(w io.Writer) (io.WriteCloser, error)
}

// Encoding 对应 Content-Encoding 的取值
type Encoding string

const (
	EncodingGzip   Encoding = "gzip"
	EncodingBrotli Encoding = "br"
)

// Selector 根据 Accept-Encoding 选择压缩器
type Selector interface {
	Select(acceptEncoding string) (Compressor, Encoding)
}
