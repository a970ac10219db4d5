package errors

import stderrors "errors"

type ErrorCode int

const (
	ErrInvalidConfig ErrorCode = iota + 1
	ErrInvalidKey              // key 不是合法的 URL
	ErrTransport               // DNS、连接、超时等传输错误
	ErrStatus                  // 上游返回非 2xx 状态码
	ErrDecode                  // 响应体不是合法的 UTF-8 文本
	ErrStorage                 // 持久化存储读写失败
)

var codeNames = map[ErrorCode]string{
	ErrInvalidConfig: "invalid_config",
	ErrInvalidKey:    "invalid_key",
	ErrTransport:     "transport",
	ErrStatus:        "status",
	ErrDecode:        "decode",
	ErrStorage:       "storage",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "unknown"
}

type FetchError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// New 创建一个带错误码的错误
func New(code ErrorCode, message string, err error) error {
	return &FetchError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf 返回错误链中第一个 FetchError 的错误码，没有则返回 0
func CodeOf(err error) ErrorCode {
	var fe *FetchError
	if stderrors.As(err, &fe) {
		return fe.Code
	}
	return 0
}

// Is 判断错误链中是否包含指定错误码
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
