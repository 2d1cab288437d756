package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches any AppError carrying the same code, so message-specific
// instances still satisfy errors.Is against the sentinels below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

const (
	CodeDocumentNotFound = "DOC_001"
	CodePageOutOfRange   = "PAGE_001"
	CodePageNotFound     = "PAGE_002"
	CodeItemNotFound     = "ITEM_001"
	CodeImageNotFound    = "IMAGE_001"
	CodeOCRUnavailable   = "OCR_001"
	CodeInvalidInput     = "GEN_002"
	CodeInternal         = "GEN_003"
)

var (
	ErrDocumentNotFound = &AppError{Code: CodeDocumentNotFound, Message: "PDF not found"}
	ErrPageOutOfRange   = &AppError{Code: CodePageOutOfRange, Message: "Page not found"}
	ErrPageNotFound     = &AppError{Code: CodePageNotFound, Message: "Page not found"}
	ErrItemNotFound     = &AppError{Code: CodeItemNotFound, Message: "Line item not found"}
	ErrImageNotFound    = &AppError{Code: CodeImageNotFound, Message: "Image file not found"}

	ErrOCRUnavailable = &AppError{Code: CodeOCRUnavailable, Message: "text recognition unavailable"}

	ErrInvalidInput = &AppError{Code: CodeInvalidInput, Message: "invalid input"}
	ErrInternal     = &AppError{Code: CodeInternal, Message: "internal error"}
)

func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// GetMessage returns the message of the outermost AppError in err's chain.
func GetMessage(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

func Invalid(format string, args ...any) *AppError {
	return New(CodeInvalidInput, fmt.Sprintf(format, args...))
}

func DocumentNotFound(ref string) *AppError {
	return New(CodeDocumentNotFound, fmt.Sprintf("PDF not found: %s", ref))
}

func PageOutOfRange(page, count int) *AppError {
	return New(CodePageOutOfRange, fmt.Sprintf("Page not found: page %d outside 1..%d", page, count))
}

func PageNotFound(page int) *AppError {
	return New(CodePageNotFound, fmt.Sprintf("Page not found: Page %d has no line items", page))
}

func ItemNotFound(page, item int) *AppError {
	return New(CodeItemNotFound, fmt.Sprintf("Line item not found: Page %d item %d", page, item))
}

func ImageNotFound(name string, cause error) *AppError {
	return New(CodeImageNotFound, fmt.Sprintf("Image file not found: %s", name), cause)
}
