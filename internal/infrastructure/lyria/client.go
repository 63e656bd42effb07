// Package lyria は、BidiGenerateMusicエンドポイントとのWebSocketセッションを扱います
package lyria

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/codec"
	"mediastudio/internal/infrastructure/config"
	"mediastudio/internal/infrastructure/logger"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	writeTimeout  = 10 * time.Second
	messageBuffer = 256
)

// PlaybackControl は、再生制御コマンドです
type PlaybackControl string

const (
	PlaybackPlay  PlaybackControl = "PLAY"
	PlaybackPause PlaybackControl = "PAUSE"
	PlaybackStop  PlaybackControl = "STOP"
)

type setupMessage struct {
	Setup struct {
		Model string `json:"model"`
	} `json:"setup"`
}

type clientContentMessage struct {
	ClientContent struct {
		WeightedPrompts []domain.WeightedPrompt `json:"weightedPrompts"`
	} `json:"clientContent"`
}

type generationConfigMessage struct {
	MusicGenerationConfig domain.MusicGenerationConfig `json:"musicGenerationConfig"`
}

type playbackControlMessage struct {
	PlaybackControl PlaybackControl `json:"playbackControl"`
}

// Client は、音楽ストリーミングセッションを確立するクライアントです
type Client struct {
	apiKey string
	config *config.MusicConfig
	dialer *websocket.Dialer
	logger *zap.Logger
}

// NewClient は新しいClientインスタンスを作成します
func NewClient(apiKey string, musicConfig *config.MusicConfig, log *zap.Logger) *Client {
	if musicConfig == nil {
		musicConfig = config.DefaultMusicConfig()
	}
	return &Client{
		apiKey: apiKey,
		config: musicConfig,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: musicConfig.HandshakeTimeout,
		},
		logger: logger.OrNop(log).Named("lyria"),
	}
}

// endpointURL は、APIキーをクエリに付与した接続先URLを返します
func (c *Client) endpointURL() (string, error) {
	u, err := url.Parse(c.config.Endpoint)
	if err != nil {
		return "", fmt.Errorf("エンドポイントURLが不正です: %w", err)
	}
	if c.apiKey != "" {
		q := u.Query()
		q.Set("key", c.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Connect は、WebSocketを接続してsetupを送信し、setupCompleteを待ってからStreamを返します
func (c *Client) Connect(ctx context.Context) (*Stream, error) {
	const op = "MusicConnect"

	endpoint, err := c.endpointURL()
	if err != nil {
		return nil, domain.NewGenerationError(domain.KindTransportFailure, op, "音楽セッションの接続に失敗しました", err)
	}

	c.logger.Info("音楽セッションに接続中", zap.String("model", c.config.Model))

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return nil, domain.NewGenerationError(domain.KindQuotaExceeded, op, "APIの利用上限に達しました。しばらく待ってから再試行してください", err)
		}
		c.logger.Error("音楽セッションの接続に失敗しました", zap.Error(err))
		return nil, domain.NewGenerationError(domain.KindTransportFailure, op, "音楽セッションの接続に失敗しました", err)
	}

	stream := newStream(conn, c.logger)

	var setup setupMessage
	setup.Setup.Model = c.config.Model
	if err := stream.writeJSON(setup); err != nil {
		_ = conn.Close()
		return nil, domain.NewGenerationError(domain.KindTransportFailure, op, "音楽セッションの初期化に失敗しました", err)
	}

	if err := stream.awaitSetupComplete(ctx, c.config.HandshakeTimeout); err != nil {
		_ = conn.Close()
		return nil, normalizeStreamError(op, err)
	}

	go stream.readLoop()

	c.logger.Info("音楽セッションを確立しました")
	return stream, nil
}

// Stream は、確立済みの音楽ストリーミングセッションです。
// Messages()のチャネルは、セッション終了後に閉じられるまで読み続ける必要があります。
type Stream struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	messages chan domain.SessionMessage
	closing  atomic.Bool
	once     sync.Once
	logger   *zap.Logger
}

func newStream(conn *websocket.Conn, log *zap.Logger) *Stream {
	return &Stream{
		conn:     conn,
		messages: make(chan domain.SessionMessage, messageBuffer),
		logger:   log,
	}
}

// Messages は、到着順のセッションメッセージを返します
func (s *Stream) Messages() <-chan domain.SessionMessage {
	return s.messages
}

// SendWeightedPrompts は、重み付きプロンプトを送信します
func (s *Stream) SendWeightedPrompts(prompts []domain.WeightedPrompt) error {
	var msg clientContentMessage
	msg.ClientContent.WeightedPrompts = prompts
	return s.writeJSON(msg)
}

// SendGenerationConfig は、生成パラメータを送信します
func (s *Stream) SendGenerationConfig(cfg domain.MusicGenerationConfig) error {
	return s.writeJSON(generationConfigMessage{MusicGenerationConfig: cfg})
}

// Play は、再生開始を要求します
func (s *Stream) Play() error {
	return s.writeJSON(playbackControlMessage{PlaybackControl: PlaybackPlay})
}

// Stop は、再生停止を要求します
func (s *Stream) Stop() error {
	return s.writeJSON(playbackControlMessage{PlaybackControl: PlaybackStop})
}

// Close は、WebSocketを閉じます。読み取りループはClosedMessageを送ってからチャネルを閉じます。
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		s.closing.Store(true)

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()

		err = s.conn.Close()
	})
	return err
}

func (s *Stream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closing.Load() {
		return fmt.Errorf("セッションは閉じられています: %w", domain.ErrInvalidSessionState)
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := s.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("メッセージの送信に失敗: %w", err)
	}
	return nil
}

// awaitSetupComplete は、setupCompleteを受信するまで待機します
func (s *Stream) awaitSetupComplete(ctx context.Context, timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	// ctxの終了は読み取り期限の即時設定で伝える
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("setupCompleteの待機が中断されました: %w", ctxErr)
			}
			return err
		}
		if gjson.GetBytes(data, "setupComplete").Exists() {
			return s.conn.SetReadDeadline(time.Time{})
		}
		s.logger.Debug("setupComplete以外のメッセージを無視しました", zap.Int("bytes", len(data)))
	}
}

// readLoop は、サーバーメッセージをSessionMessageに変換して到着順に送出します
func (s *Stream) readLoop() {
	defer close(s.messages)

	chunks := 0
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err, chunks)
			return
		}

		result := gjson.ParseBytes(data)

		if audio := result.Get("serverContent.audioChunks"); audio.Exists() {
			for _, chunk := range audio.Array() {
				pcm, err := codec.DecodeBase64ToBytes(chunk.Get("data").String())
				if err != nil {
					s.messages <- domain.ErrorMessage{Err: err}
					continue
				}
				chunks++
				s.messages <- domain.AudioChunkMessage{
					Data:     pcm,
					MimeType: chunk.Get("mimeType").String(),
				}
			}
		}

		if filtered := result.Get("filteredPrompt"); filtered.Exists() {
			s.messages <- domain.WarningMessage{Text: "プロンプトがフィルタリングされました: " + filtered.Get("filteredReason").String()}
		}
		if warning := result.Get("warning"); warning.Exists() {
			s.messages <- domain.WarningMessage{Text: warning.String()}
		}
	}
}

// finish は、読み取り終了の理由に応じて最後のメッセージを送出します
func (s *Stream) finish(err error, chunks int) {
	switch {
	case s.closing.Load():
		s.messages <- domain.ClosedMessage{Reason: "client closed"}
		return
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		s.messages <- domain.ClosedMessage{Reason: closeReason(err)}
	default:
		s.logger.Warn("音楽セッションが異常終了しました", zap.Error(err), zap.Int("chunks", chunks))
		s.messages <- domain.ErrorMessage{Err: normalizeStreamError("MusicStream", err)}
		s.messages <- domain.ClosedMessage{Reason: closeReason(err)}
	}
	_ = s.conn.Close()
}

func closeReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Text != "" {
		return closeErr.Text
	}
	return "connection closed"
}

// normalizeStreamError は、WebSocketのエラーを種別付きのGenerationErrorに変換します
func normalizeStreamError(op string, err error) error {
	text := err.Error()
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		text += " " + closeErr.Text
	}
	if domain.HasQuotaSignal(text) || strings.Contains(strings.ToUpper(text), "QUOTA") {
		return domain.NewGenerationError(domain.KindQuotaExceeded, op, "APIの利用上限に達しました。しばらく待ってから再試行してください", err)
	}
	return domain.NewGenerationError(domain.KindTransportFailure, op, "音楽セッションとの通信に失敗しました", err)
}
