package gemini

import "errors"

// GenerationError 远程调用成功，但响应中没有可用的结果
type GenerationError struct {
	Op      string
	Message string
}

func (e *GenerationError) Error() string {
	return e.Message
}

// IsGenerationError 判断 err 链中是否包含 GenerationError
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}
