package domain

import (
	"context"
	"errors"
	"strings"
)

// ドメイン固有のエラー種別を定義
var (
	// ErrQuotaExceeded は、APIのレート制限・リソース枯渇を示すエラーです
	ErrQuotaExceeded = errors.New("APIの利用上限に達しました")

	// ErrEmptyOutput は、モデルが利用可能な出力を返さなかった場合のエラーです
	ErrEmptyOutput = errors.New("モデルから有効な出力が得られませんでした")

	// ErrResourceUnavailable は、ローカルのキャプチャ資源が利用できない場合のエラーです
	ErrResourceUnavailable = errors.New("キャプチャ用のリソースが利用できません")

	// ErrTransportFailure は、その他のネットワーク・プロトコルエラーです
	ErrTransportFailure = errors.New("外部APIとの通信に失敗しました")

	// ErrDecode は、不正なbase64データを受け取った場合のエラーです
	ErrDecode = errors.New("データのデコードに失敗しました")

	// ErrInvalidPrompt は、無効なプロンプトの場合のエラーです
	ErrInvalidPrompt = errors.New("無効なプロンプトです")

	// ErrInvalidSessionState は、現在の状態で許可されない操作を行った場合のエラーです
	ErrInvalidSessionState = errors.New("セッションの状態が不正です")
)

// ErrorKind は、操作境界で正規化されたエラーの種別です
type ErrorKind int

const (
	KindTransportFailure ErrorKind = iota
	KindQuotaExceeded
	KindEmptyOutput
	KindResourceUnavailable
)

// String はErrorKindの名前を返します
func (k ErrorKind) String() string {
	switch k {
	case KindQuotaExceeded:
		return "QuotaExceeded"
	case KindEmptyOutput:
		return "EmptyOrRefusedOutput"
	case KindResourceUnavailable:
		return "ResourceUnavailable"
	default:
		return "TransportFailure"
	}
}

// sentinel は種別に対応する番兵エラーを返します
func (k ErrorKind) sentinel() error {
	switch k {
	case KindQuotaExceeded:
		return ErrQuotaExceeded
	case KindEmptyOutput:
		return ErrEmptyOutput
	case KindResourceUnavailable:
		return ErrResourceUnavailable
	default:
		return ErrTransportFailure
	}
}

// GenerationError は、生成操作の失敗を利用者向けメッセージとともに表します。
// 元のエラーは診断用にのみ保持し、Error()には含めません。
type GenerationError struct {
	Kind    ErrorKind
	Op      string
	Message string
	cause   error
}

// NewGenerationError は新しいGenerationErrorを作成します
func NewGenerationError(kind ErrorKind, op, message string, cause error) *GenerationError {
	return &GenerationError{
		Kind:    kind,
		Op:      op,
		Message: message,
		cause:   cause,
	}
}

// Error は利用者向けのメッセージを返します
func (e *GenerationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.sentinel().Error()
}

// Cause は診断ログ用の元のエラーを返します
func (e *GenerationError) Cause() error {
	return e.cause
}

// Unwrap は種別の番兵エラーと、キャンセル・タイムアウトのみを公開します
func (e *GenerationError) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	switch {
	case errors.Is(e.cause, context.DeadlineExceeded):
		errs = append(errs, context.DeadlineExceeded)
	case errors.Is(e.cause, context.Canceled):
		errs = append(errs, context.Canceled)
	}
	return errs
}

// HasQuotaSignal は、エラー文字列にレート制限・リソース枯渇を示すステータスが含まれるかを判定します
func HasQuotaSignal(text string) bool {
	return strings.Contains(text, "RESOURCE_EXHAUSTED") || strings.Contains(text, "429")
}

// KindOf は、エラーの種別を判定します
func KindOf(err error) ErrorKind {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrEmptyOutput):
		return KindEmptyOutput
	case errors.Is(err, ErrResourceUnavailable):
		return KindResourceUnavailable
	default:
		return KindTransportFailure
	}
}
