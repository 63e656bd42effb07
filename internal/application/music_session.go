package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mediastudio/internal/domain"
	"mediastudio/internal/infrastructure/codec"
	"mediastudio/internal/infrastructure/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const musicOp = "MusicGenerate"

// MusicSession は、1回の音楽ストリーミング生成の状態と受信済みチャンクを保持します
type MusicSession struct {
	ID      string
	request domain.MusicRequest
	logger  *zap.Logger

	mu            sync.Mutex
	state         domain.SessionState
	outcome       domain.SessionOutcome
	stream        MusicStream
	cancelConnect context.CancelFunc
	timer         *time.Timer
	chunks        [][]byte
	result        *domain.WavAsset
	err           error
	done          chan struct{}
}

func newMusicSession(req domain.MusicRequest, log *zap.Logger) *MusicSession {
	id := uuid.NewString()
	return &MusicSession{
		ID:      id,
		request: req,
		logger:  log.With(zap.String("session", id)),
		state:   domain.SessionIdle,
		done:    make(chan struct{}),
	}
}

// State は現在の状態を返します
func (s *MusicSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Outcome は終了結果を返します
func (s *MusicSession) Outcome() domain.SessionOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// ChunkCount は受信済みの音声チャンク数を返します
func (s *MusicSession) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Done は、セッションが終了すると閉じられるチャネルを返します
func (s *MusicSession) Done() <-chan struct{} {
	return s.done
}

// Wait は、セッションの終了を待ってWAVアセットを返します
func (s *MusicSession) Wait(ctx context.Context) (*domain.WavAsset, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.result, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop は、接続中またはストリーミング中のセッションを停止します。
// 自動停止タイマーが残っていれば取り消します。
func (s *MusicSession) Stop() error {
	s.mu.Lock()
	if !s.state.CanStop() {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%s状態のセッションは停止できません: %w", state, domain.ErrInvalidSessionState)
	}

	previous := s.state
	s.state = domain.SessionClosing
	if s.timer != nil {
		s.timer.Stop()
	}
	cancel := s.cancelConnect
	stream := s.stream
	s.mu.Unlock()

	s.logger.Info("音楽セッションを停止します", zap.String("from", previous.String()))

	// 接続確立前ならダイヤルを中断し、確立後の設定送信中ならストリームを閉じる
	if previous == domain.SessionConnecting && cancel != nil {
		cancel()
	}

	if stream != nil {
		if err := stream.Stop(); err != nil {
			s.logger.Debug("停止コマンドの送信に失敗しました", zap.Error(err))
		}
		if err := stream.Close(); err != nil {
			s.logger.Debug("セッションのクローズに失敗しました", zap.Error(err))
		}
	}
	return nil
}

// start は、接続・プロンプト送信・設定送信・再生開始の順に実行し、ストリーミング状態にします
func (s *MusicSession) start(ctx context.Context, transport MusicTransport) error {
	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.state = domain.SessionConnecting
	s.cancelConnect = cancel
	s.mu.Unlock()

	stream, err := transport.Open(connectCtx)

	s.mu.Lock()
	s.cancelConnect = nil
	stoppedWhileConnecting := s.state == domain.SessionClosing
	if err == nil && !stoppedWhileConnecting {
		s.stream = stream
	}
	s.mu.Unlock()

	if stoppedWhileConnecting {
		if err == nil {
			_ = stream.Close()
			go drainMessages(stream)
		}
		s.logger.Info("接続中に停止されました")
		s.finalize()
		return nil
	}
	if err != nil {
		s.fail(err)
		s.finalize()
		return err
	}

	// 設定メッセージは必ず再生開始より前に送る
	steps := []struct {
		name string
		run  func() error
	}{
		{"weightedPrompts", func() error { return stream.SendWeightedPrompts(s.request.WeightedPrompts()) }},
		{"musicGenerationConfig", func() error { return stream.SendGenerationConfig(s.request.GenerationConfig()) }},
		{"play", stream.Play},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			if s.State() == domain.SessionClosing {
				// 設定送信中に停止された場合、送信エラーは停止によるもの
				s.logger.Info("設定送信中に停止されました", zap.String("step", step.name))
				_ = stream.Close()
				drainMessages(stream)
				s.finalize()
				return nil
			}
			wrapped := domain.NewGenerationError(domain.KindTransportFailure, musicOp, "音楽セッションの設定に失敗しました", fmt.Errorf("%s: %w", step.name, err))
			s.fail(wrapped)
			_ = stream.Close()
			drainMessages(stream)
			s.finalize()
			return wrapped
		}
	}

	s.mu.Lock()
	if s.state != domain.SessionConnecting {
		// 設定送信中に停止された。ストリームはStopが閉じている
		s.mu.Unlock()
		go s.consume(stream)
		return nil
	}
	s.state = domain.SessionStreaming
	s.timer = time.AfterFunc(s.request.Duration(), func() {
		s.logger.Info("指定時間に達したため自動停止します")
		_ = s.Stop()
	})
	s.mu.Unlock()

	s.logger.Info("音楽ストリーミングを開始しました",
		zap.Int("bpm", s.request.BPM),
		zap.Duration("duration", s.request.Duration()))

	go s.consume(stream)
	return nil
}

// consume は、メッセージを到着順に処理し、チャネルが閉じられたら結果を確定します
func (s *MusicSession) consume(stream MusicStream) {
	for msg := range stream.Messages() {
		switch m := msg.(type) {
		case domain.AudioChunkMessage:
			s.mu.Lock()
			if s.err == nil {
				s.chunks = append(s.chunks, m.Data)
			}
			s.mu.Unlock()
		case domain.ErrorMessage:
			s.logger.Warn("音楽セッションでエラーが発生しました", zap.Error(m.Err))
			s.fail(m.Err)
			s.mu.Lock()
			if s.state == domain.SessionStreaming {
				s.state = domain.SessionClosing
				if s.timer != nil {
					s.timer.Stop()
				}
			}
			s.mu.Unlock()
			_ = stream.Close()
		case domain.WarningMessage:
			s.logger.Warn("音楽セッションからの警告", zap.String("warning", m.Text))
		case domain.ClosedMessage:
			s.logger.Debug("音楽セッションが閉じられました", zap.String("reason", m.Reason))
		}
	}
	s.finalize()
}

// fail は最初のエラーだけを記録します
func (s *MusicSession) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	var genErr *domain.GenerationError
	if !errors.As(err, &genErr) {
		err = domain.NewGenerationError(domain.KindOf(err), musicOp, "音楽の生成に失敗しました", err)
	}
	s.err = err
}

// finalize は、受信済みチャンクをWAVに変換して終了状態にします。
// エラーが記録されている場合、途中までの音声は破棄します。
func (s *MusicSession) finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.SessionClosed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.state = domain.SessionClosed
	s.stream = nil

	switch {
	case s.err != nil:
		s.outcome = domain.OutcomeError
		s.chunks = nil
	case len(s.chunks) == 0:
		s.outcome = domain.OutcomeError
		s.err = domain.NewGenerationError(domain.KindEmptyOutput, musicOp, "音声が生成されませんでした", errors.New("no audio produced"))
	default:
		pcm := codec.ConcatChunks(s.chunks)
		wav := codec.FrameRawPCMAsWAV(pcm, codec.DefaultSampleRate, codec.DefaultChannels, codec.DefaultBitsPerSample)
		s.result = domain.NewWavAsset(wav, codec.DefaultSampleRate, codec.DefaultChannels, codec.DefaultBitsPerSample, len(s.chunks))
		s.outcome = domain.OutcomeSuccess
	}

	s.logger.Info("音楽セッションが終了しました",
		zap.String("outcome", outcomeName(s.outcome)),
		zap.Int("chunks", len(s.chunks)))
	close(s.done)
}

func outcomeName(o domain.SessionOutcome) string {
	switch o {
	case domain.OutcomeSuccess:
		return "success"
	case domain.OutcomeError:
		return "error"
	default:
		return "none"
	}
}

func drainMessages(stream MusicStream) {
	for range stream.Messages() {
	}
}

// MusicSessionManager は、同時に1つだけ有効な音楽セッションを所有します
type MusicSessionManager struct {
	transport MusicTransport
	logger    *zap.Logger

	startMu sync.Mutex
	mu      sync.Mutex
	active  *MusicSession
}

// NewMusicSessionManager は新しいMusicSessionManagerインスタンスを作成します
func NewMusicSessionManager(transport MusicTransport, log *zap.Logger) *MusicSessionManager {
	return &MusicSessionManager{
		transport: transport,
		logger:    logger.OrNop(log).Named("music_session"),
	}
}

// Start は、前のセッションを強制停止して終了を待ってから、新しいセッションを開始します
func (m *MusicSessionManager) Start(ctx context.Context, req domain.MusicRequest) (*MusicSession, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mu.Lock()
	previous := m.active
	m.mu.Unlock()

	if previous != nil {
		m.logger.Info("前の音楽セッションを停止します", zap.String("session", previous.ID))
		if err := m.closeSession(ctx, previous); err != nil {
			return nil, err
		}
	}

	session := newMusicSession(req, m.logger)
	m.mu.Lock()
	m.active = session
	m.mu.Unlock()

	if err := session.start(ctx, m.transport); err != nil {
		return nil, err
	}
	return session, nil
}

// Active は現在のセッションを返します
func (m *MusicSessionManager) Active() *MusicSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Stop は、現在のセッションを停止します
func (m *MusicSessionManager) Stop() error {
	session := m.Active()
	if session == nil {
		return fmt.Errorf("有効なセッションがありません: %w", domain.ErrInvalidSessionState)
	}
	return session.Stop()
}

// Dispose は、現在のセッションを停止して終了を待ちます
func (m *MusicSessionManager) Dispose(ctx context.Context) error {
	session := m.Active()
	if session == nil {
		return nil
	}
	if err := m.closeSession(ctx, session); err != nil {
		return err
	}

	m.mu.Lock()
	if m.active == session {
		m.active = nil
	}
	m.mu.Unlock()
	return nil
}

func (m *MusicSessionManager) closeSession(ctx context.Context, session *MusicSession) error {
	_ = session.Stop()
	select {
	case <-session.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("前のセッションの終了待ちが中断されました: %w", ctx.Err())
	}
}
