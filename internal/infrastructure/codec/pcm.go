// Package codec は、base64のデコードと生PCMのWAVフレーミングを提供します
package codec

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"mediastudio/internal/domain"
)

// WAVHeaderSize は、WAVコンテナのヘッダサイズです
const WAVHeaderSize = 44

// 音楽セッションで使用する固定フォーマット
const (
	DefaultSampleRate    = 44100
	DefaultChannels      = 2
	DefaultBitsPerSample = 16
)

// WAVHeader は、WAVヘッダから読み取ったフォーマット情報です
type WAVHeader struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	ByteRate      int
	BlockAlign    int
	DataLength    int
}

// DecodeBase64ToBytes は、base64文字列をバイト列にデコードします
func DecodeBase64ToBytes(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return data, nil
}

// EncodeBytesToBase64 は、バイト列をbase64文字列にエンコードします
func EncodeBytesToBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// ConcatChunks は、チャンクを到着順のまま連結します
func ConcatChunks(chunks [][]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// FrameRawPCMAsWAV は、生PCMの前に44バイトのRIFF/WAVEヘッダを付けます。
// 圧縮・リサンプリングは行わず、ペイロードはそのままコピーされます。
func FrameRawPCMAsWAV(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataLen := len(pcm)

	buf := make([]byte, WAVHeaderSize+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(WAVHeaderSize-8+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bitsPerSample))
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	copy(buf[WAVHeaderSize:], pcm)

	return buf
}

// ParseWAVHeader は、FrameRawPCMAsWAVが生成したヘッダを読み取ります
func ParseWAVHeader(wav []byte) (WAVHeader, error) {
	if len(wav) < WAVHeaderSize {
		return WAVHeader{}, fmt.Errorf("WAVデータが短すぎます: %dバイト", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return WAVHeader{}, fmt.Errorf("RIFF/WAVEヘッダではありません")
	}
	if string(wav[12:16]) != "fmt " || string(wav[36:40]) != "data" {
		return WAVHeader{}, fmt.Errorf("想定外のチャンク構成です")
	}
	if format := binary.LittleEndian.Uint16(wav[20:22]); format != 1 {
		return WAVHeader{}, fmt.Errorf("PCM以外のフォーマットです: %d", format)
	}

	return WAVHeader{
		Channels:      int(binary.LittleEndian.Uint16(wav[22:24])),
		SampleRate:    int(binary.LittleEndian.Uint32(wav[24:28])),
		ByteRate:      int(binary.LittleEndian.Uint32(wav[28:32])),
		BlockAlign:    int(binary.LittleEndian.Uint16(wav[32:34])),
		BitsPerSample: int(binary.LittleEndian.Uint16(wav[34:36])),
		DataLength:    int(binary.LittleEndian.Uint32(wav[40:44])),
	}, nil
}

// PCMPayload は、WAVデータからPCMペイロード部分を返します
func PCMPayload(wav []byte) ([]byte, error) {
	header, err := ParseWAVHeader(wav)
	if err != nil {
		return nil, err
	}
	end := WAVHeaderSize + header.DataLength
	if end > len(wav) {
		return nil, fmt.Errorf("dataチャンク長がファイルサイズを超えています")
	}
	return wav[WAVHeaderSize:end], nil
}
