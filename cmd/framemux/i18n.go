// Package main provides localization for the framemux CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Root command
		"Encode image sequences into MP4 videos with an optional audio track.": "画像の並びを音声トラック付きのMP4動画にエンコードします。",

		// Commands
		"Encode a sequence of images as an MP4 video.":            "画像の並びをMP4動画としてエンコード",
		"Encode generated frames as an MP4 video.":                "生成したフレームをMP4動画としてエンコード",
		"List supported codecs and the encoders that serve them.": "対応コーデックと使用されるエンコーダーを一覧表示",
		"Show the tracks of an MP4 file.":                         "MP4ファイルのトラックを表示",
		"Show version information.":                               "バージョン情報を表示",
		"framemux version %s":                                     "framemux バージョン %s",

		// Encoding flags
		"Output MP4 file path.":                                      "出力MP4ファイルパス",
		"YAML job file.":                                             "YAMLジョブファイル",
		"Video codec (avc, hevc, av1).":                              "動画コーデック（avc, hevc, av1）",
		"Output video width (default: 320).":                         "出力動画の幅（デフォルト: 320）",
		"Output video height (default: 240).":                        "出力動画の高さ（デフォルト: 240）",
		"Frames per second (default: 15).":                           "フレームレート（デフォルト: 15）",
		"Video bit rate in bits per second.":                         "動画のビットレート（bps）",
		"Seconds between keyframes (0 = every frame).":               "キーフレーム間隔の秒数（0 = 全フレーム）",
		"Number of frames each image is shown for.":                  "1枚の画像を表示するフレーム数",
		"MP4, M4A or ADTS file to copy the audio track from.":        "音声トラックのコピー元となるMP4, M4A, ADTSファイル",
		"Interleave audio with video instead of appending it.":       "音声を末尾に追加せず映像とインターリーブする",
		"Abort the job after this duration.":                         "この時間を過ぎたらジョブを中止",
		"Path to ffmpeg (falls back to FFMPEG_PATH env, then PATH).": "ffmpegのパス（未指定時は FFMPEG_PATH 環境変数、次に PATH）",
		"Use software encoders only.":                                "ソフトウェアエンコーダーのみを使用",
		"Output execution summary to file (Markdown format).":        "実行サマリーをファイルに出力（Markdown形式）",

		// Demo flags
		"Number of frames to generate.":           "生成するフレーム数",
		"Background colors (hex, e.g., #1976d2).": "背景色（16進数、例: #1976d2）",
		"Do not draw the frame number.":           "フレーム番号を描画しない",
		"Draw a progress bar.":                    "進捗バーを描画",

		// Logging flags
		"Log level (debug, info, warn, error).": "ログレベル（debug, info, warn, error）",
		"Suppress all log output.":              "全てのログ出力を抑制",

		// Error messages
		"Output path is required": "出力パスが必要です",
		"No input images":         "入力画像がありません",

		// Codecs output
		"Codec":       "コーデック",
		"MIME":        "MIME",
		"Encoder":     "エンコーダー",
		"unavailable": "利用不可",
		"hardware":    "ハードウェア",

		// Probe output
		"progressive":                                     "プログレッシブ",
		"fragmented":                                      "フラグメント",
		"%s: %s, %s, brands %s":                           "%s: %s, %s, ブランド %s",
		"Duration: %s":                                    "再生時間: %s",
		"Track %d: %s %s %dx%d, %d samples (%d sync), %s": "トラック %d: %s %s %dx%d, %d サンプル (同期 %d), %s",
		"Track %d: %s %s %d Hz %d ch, %d samples, %s":     "トラック %d: %s %s %d Hz %d ch, %d サンプル, %s",
		"Track %d: %s %s, %d samples, %s":                 "トラック %d: %s %s, %d サンプル, %s",
	})
}
