package lyria

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/config"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeServer struct {
	server   *httptest.Server
	received chan string
	query    chan string
}

// newFakeServer は、setupに応答した後handlerにセッションを委ねるテスト用サーバーを起動します
func newFakeServer(t *testing.T, completeSetup bool, handler func(conn *websocket.Conn)) *fakeServer {
	t.Helper()
	fs := &fakeServer{
		received: make(chan string, 32),
		query:    make(chan string, 1),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.query <- r.URL.Query().Get("key")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade websocket failed: %v", err)
			return
		}
		defer func() {
			_ = conn.Close()
		}()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		fs.received <- string(data)
		if !completeSetup {
			time.Sleep(200 * time.Millisecond)
			return
		}
		if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			return
		}
		handler(conn)
	}))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeServer) client(timeout time.Duration) *Client {
	cfg := config.DefaultMusicConfig()
	cfg.Endpoint = "ws" + strings.TrimPrefix(fs.server.URL, "http")
	cfg.HandshakeTimeout = timeout
	return NewClient("test-key", cfg, nil)
}

func audioChunk(pcm []byte) map[string]any {
	return map[string]any{
		"serverContent": map[string]any{
			"audioChunks": []map[string]any{
				{"data": base64.StdEncoding.EncodeToString(pcm), "mimeType": "audio/l16;rate=44100;channels=2"},
			},
		},
	}
}

func drain(t *testing.T, stream *Stream) []domain.SessionMessage {
	t.Helper()
	var got []domain.SessionMessage
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-stream.Messages():
			if !ok {
				return got
			}
			got = append(got, msg)
		case <-timeout:
			t.Fatal("メッセージチャネルが閉じられませんでした")
		}
	}
}

func TestConnect_HandshakeAndCommands(t *testing.T) {
	commands := make(chan string, 8)
	fs := newFakeServer(t, true, func(conn *websocket.Conn) {
		for i := 0; i < 3; i++ {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			commands <- string(data)
		}
		_ = conn.WriteJSON(audioChunk([]byte{1, 2, 3, 4}))
		_ = conn.WriteJSON(audioChunk([]byte{5, 6, 7, 8}))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
	})

	stream, err := fs.client(time.Second).Connect(context.Background())
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, "test-key", <-fs.query)
	setup := <-fs.received
	assert.Equal(t, "models/lyria-realtime-exp", gjson.Get(setup, "setup.model").String())

	require.NoError(t, stream.SendWeightedPrompts([]domain.WeightedPrompt{{Text: "calm piano", Weight: 1.0}}))
	require.NoError(t, stream.SendGenerationConfig(domain.MusicGenerationConfig{BPM: 90, Temperature: 1.1}))
	require.NoError(t, stream.Play())

	prompts := <-commands
	assert.Equal(t, "calm piano", gjson.Get(prompts, "clientContent.weightedPrompts.0.text").String())
	assert.Equal(t, 1.0, gjson.Get(prompts, "clientContent.weightedPrompts.0.weight").Float())
	cfg := <-commands
	assert.Equal(t, int64(90), gjson.Get(cfg, "musicGenerationConfig.bpm").Int())
	assert.Equal(t, "PLAY", gjson.Get(<-commands, "playbackControl").String())

	msgs := drain(t, stream)
	require.Len(t, msgs, 3)
	first, ok := msgs[0].(domain.AudioChunkMessage)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, first.Data)
	second, ok := msgs[1].(domain.AudioChunkMessage)
	require.True(t, ok)
	assert.Equal(t, []byte{5, 6, 7, 8}, second.Data)
	closed, ok := msgs[2].(domain.ClosedMessage)
	require.True(t, ok)
	assert.Equal(t, "done", closed.Reason)
}

func TestConnect_HandshakeTimeout(t *testing.T) {
	fs := newFakeServer(t, false, nil)

	_, err := fs.client(50 * time.Millisecond).Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransportFailure)
}

func TestConnect_Cancelled(t *testing.T) {
	fs := newFakeServer(t, false, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := fs.client(5 * time.Second).Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStream_TransportErrorEmitsErrorThenClosed(t *testing.T) {
	fs := newFakeServer(t, true, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(audioChunk([]byte{9, 9}))
		// 閉じるハンドシェイクなしで切断する
		_ = conn.UnderlyingConn().Close()
	})

	stream, err := fs.client(time.Second).Connect(context.Background())
	require.NoError(t, err)

	msgs := drain(t, stream)
	require.Len(t, msgs, 3)
	assert.IsType(t, domain.AudioChunkMessage{}, msgs[0])
	errMsg, ok := msgs[1].(domain.ErrorMessage)
	require.True(t, ok)
	assert.ErrorIs(t, errMsg.Err, domain.ErrTransportFailure)
	assert.IsType(t, domain.ClosedMessage{}, msgs[2])
}

func TestStream_QuotaClose(t *testing.T) {
	fs := newFakeServer(t, true, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "RESOURCE_EXHAUSTED: quota"))
	})

	stream, err := fs.client(time.Second).Connect(context.Background())
	require.NoError(t, err)

	msgs := drain(t, stream)
	require.Len(t, msgs, 2)
	errMsg, ok := msgs[0].(domain.ErrorMessage)
	require.True(t, ok)
	assert.ErrorIs(t, errMsg.Err, domain.ErrQuotaExceeded)
}

func TestStream_TooManyRequestsCloseIsQuota(t *testing.T) {
	fs := newFakeServer(t, true, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "429 Too Many Requests"))
	})

	stream, err := fs.client(time.Second).Connect(context.Background())
	require.NoError(t, err)

	msgs := drain(t, stream)
	require.Len(t, msgs, 2)
	errMsg, ok := msgs[0].(domain.ErrorMessage)
	require.True(t, ok)
	assert.ErrorIs(t, errMsg.Err, domain.ErrQuotaExceeded)
	assert.Equal(t, domain.KindQuotaExceeded, domain.KindOf(errMsg.Err))
}

func TestNormalizeStreamError(t *testing.T) {
	quota := normalizeStreamError("MusicStream", errors.New("read: 429 Too Many Requests"))
	assert.ErrorIs(t, quota, domain.ErrQuotaExceeded)

	other := normalizeStreamError("MusicStream", errors.New("read: connection reset by peer"))
	assert.ErrorIs(t, other, domain.ErrTransportFailure)
	assert.NotContains(t, other.Error(), "connection reset")
}

func TestStream_WarningsAndInvalidChunk(t *testing.T) {
	fs := newFakeServer(t, true, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{"filteredPrompt": map[string]any{"text": "x", "filteredReason": "unsafe"}})
		_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{"audioChunks": []map[string]any{{"data": "!!not-base64!!"}}}})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	stream, err := fs.client(time.Second).Connect(context.Background())
	require.NoError(t, err)

	msgs := drain(t, stream)
	require.Len(t, msgs, 3)
	warning, ok := msgs[0].(domain.WarningMessage)
	require.True(t, ok)
	assert.Contains(t, warning.Text, "unsafe")
	errMsg, ok := msgs[1].(domain.ErrorMessage)
	require.True(t, ok)
	assert.ErrorIs(t, errMsg.Err, domain.ErrDecode)
	assert.IsType(t, domain.ClosedMessage{}, msgs[2])
}

func TestStream_ClientClose(t *testing.T) {
	fs := newFakeServer(t, true, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	stream, err := fs.client(time.Second).Connect(context.Background())
	require.NoError(t, err)
	require.NoError(t, stream.Stop())
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	msgs := drain(t, stream)
	require.Len(t, msgs, 1)
	closed, ok := msgs[0].(domain.ClosedMessage)
	require.True(t, ok)
	assert.Equal(t, "client closed", closed.Reason)

	assert.ErrorIs(t, stream.Play(), domain.ErrInvalidSessionState)
}

func TestOutgoingMessageShapes(t *testing.T) {
	data, err := json.Marshal(playbackControlMessage{PlaybackControl: PlaybackStop})
	require.NoError(t, err)
	assert.JSONEq(t, `{"playbackControl":"STOP"}`, string(data))

	data, err = json.Marshal(generationConfigMessage{MusicGenerationConfig: domain.MusicGenerationConfig{BPM: 120}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"musicGenerationConfig":{"bpm":120,"temperature":0}}`, string(data))

	data, err = json.Marshal(generationConfigMessage{MusicGenerationConfig: domain.MusicGenerationConfig{BPM: 90, Temperature: 1.5}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"musicGenerationConfig":{"bpm":90,"temperature":1.5}}`, string(data))
}
