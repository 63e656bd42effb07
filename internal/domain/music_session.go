package domain

// SessionState は、音楽ストリーミングセッションの状態です
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionConnecting
	SessionStreaming
	SessionClosing
	SessionClosed
)

// String はSessionStateの名前を返します
func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "Idle"
	case SessionConnecting:
		return "Connecting"
	case SessionStreaming:
		return "Streaming"
	case SessionClosing:
		return "Closing"
	case SessionClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// CanStop は、この状態から停止を要求できるかを判定します
func (s SessionState) CanStop() bool {
	return s == SessionConnecting || s == SessionStreaming
}

// IsActive は、セッションがまだ終了していないかを判定します
func (s SessionState) IsActive() bool {
	return s != SessionIdle && s != SessionClosed
}

// SessionOutcome は、Closed状態での結果です
type SessionOutcome int

const (
	OutcomeNone SessionOutcome = iota
	OutcomeSuccess
	OutcomeError
)

// SessionMessage は、ストリーミングセッションから届くメッセージのタグ付きバリアントです
type SessionMessage interface {
	isSessionMessage()
}

// AudioChunkMessage は、デコード済みの音声チャンクです
type AudioChunkMessage struct {
	Data     []byte
	MimeType string
}

// ErrorMessage は、トランスポート層のエラーです
type ErrorMessage struct {
	Err error
}

// ClosedMessage は、セッションが閉じたことを示します
type ClosedMessage struct {
	Reason string
}

// WarningMessage は、プロンプトのフィルタリングなどサーバーからの警告です
type WarningMessage struct {
	Text string
}

func (AudioChunkMessage) isSessionMessage() {}
func (ErrorMessage) isSessionMessage()      {}
func (ClosedMessage) isSessionMessage()     {}
func (WarningMessage) isSessionMessage()    {}
