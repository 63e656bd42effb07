package gemini

import (
	"context"
	"encoding/json"
	"fmt"

	"mediastudio/internal/domain"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const analysisInstruction = `These frames were sampled in order from a short video clip.
Describe the scene, its mood and its pacing in one or two sentences as "sceneDescription".
Then write a concise prompt for an instrumental soundtrack that would fit the clip as "musicPrompt":
name the genre, the instruments, the tempo feel and the emotional tone.`

const dialogueInstruction = `These frames were sampled in order from a short video clip.
Suggest a few short lines of dialogue or narration that would fit the scene.
Reply with the lines only, one per line, without any explanation.`

// analysisSchema は、動画解析の構造化出力スキーマです
var analysisSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"sceneDescription": {
			Type:        genai.TypeString,
			Description: "動画の場面の説明",
		},
		"musicPrompt": {
			Type:        genai.TypeString,
			Description: "場面に合う音楽を生成するためのプロンプト",
		},
	},
	Required: []string{"sceneDescription", "musicPrompt"},
}

// AnalyzeVideoForSound は、フレーム列から場面の説明と音楽プロンプトを構造化JSONで取得します
func (c *MediaClient) AnalyzeVideoForSound(ctx context.Context, frames []string) (*domain.AnalysisResult, error) {
	const op = "AnalyzeVideoForSound"
	c.logger.Info("動画解析をリクエスト中", zap.Int("frames", len(frames)))

	parts, err := framesToParts(frames)
	if err != nil {
		return nil, c.normalizeError(op, err)
	}
	parts = append(parts, genai.NewPartFromText(analysisInstruction))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genConfig := c.createGenerateConfig()
	genConfig.ResponseMIMEType = "application/json"
	genConfig.ResponseSchema = analysisSchema

	resp, err := c.backend.GenerateContent(ctx, c.config.TextModel, contents, genConfig)
	if err != nil {
		return nil, c.normalizeError(op, err)
	}

	candidate, err := c.firstCandidate(resp)
	if err != nil {
		return nil, c.normalizeError(op, err)
	}

	var result domain.AnalysisResult
	if err := json.Unmarshal([]byte(extractText(candidate)), &result); err != nil {
		return nil, c.normalizeError(op, fmt.Errorf("解析結果のJSONが不正です: %v: %w", err, domain.ErrEmptyOutput))
	}
	if err := result.Validate(); err != nil {
		return nil, c.normalizeError(op, err)
	}

	c.logger.Info("動画解析が完了しました",
		zap.Int("scene_length", len(result.SceneDescription)),
		zap.Int("music_prompt_length", len(result.MusicPrompt)))
	return &result, nil
}

// SuggestDialogue は、フレーム列から場面に合うセリフを提案します
func (c *MediaClient) SuggestDialogue(ctx context.Context, frames []string) (string, error) {
	const op = "SuggestDialogue"
	c.logger.Info("セリフ提案をリクエスト中", zap.Int("frames", len(frames)))

	parts, err := framesToParts(frames)
	if err != nil {
		return "", c.normalizeError(op, err)
	}
	parts = append(parts, genai.NewPartFromText(dialogueInstruction))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := c.backend.GenerateContent(ctx, c.config.TextModel, contents, c.createGenerateConfig())
	if err != nil {
		return "", c.normalizeError(op, err)
	}

	candidate, err := c.firstCandidate(resp)
	if err != nil {
		return "", c.normalizeError(op, err)
	}

	text := extractText(candidate)
	if text == "" {
		return "", c.normalizeError(op, fmt.Errorf("セリフが空です: %w", domain.ErrEmptyOutput))
	}
	return text, nil
}
