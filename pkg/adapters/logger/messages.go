package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Job level messages (info)
		"Encoding %d images as %s with %s (%dx%d, %v fps, %d bps)": "%d 枚の画像を %s として %s でエンコード中 (%dx%d, %v fps, %d bps)",
		"Wrote %s: %d video samples, %d audio samples, %s in %s":   "%s を書き出しました: 映像 %d サンプル, 音声 %d サンプル, %s (%s)",
		"Audio source %s: %s, %d Hz, %d channels, %d samples":      "音声ソース %s: %s, %d Hz, %d チャンネル, %d サンプル",

		// Encoder driver
		"Configured %s (%s) %dx%d @ %v fps, %d bps, GOP %d": "%s (%s) を設定しました %dx%d @ %v fps, %d bps, GOP %d",
		"End of input after %d frames":                      "%d フレームで入力を終了しました",
		"Access unit %d: %d bytes, pts %d, keyframe %v":     "アクセスユニット %d: %d バイト, pts %d, キーフレーム %v",
		"Drained %d access units":                           "%d 個のアクセスユニットを取り出しました",
		"Starting %s: %v":                                   "%s を起動中: %v",
		"Hardware encoder %s unusable: %v":                  "ハードウェアエンコーダー %s は使用できません: %v",

		// Muxer
		"Registered %s track %d (timescale %d)": "%s トラック %d を登録しました (タイムスケール %d)",
		"Muxer started with %d tracks":          "%d トラックでマルチプレクサを開始しました",
		"Started: %d tracks, mdat at offset %d": "開始: %d トラック, mdat オフセット %d",
		"Finalized %s: %d tracks, %s":           "%s を確定しました: %d トラック, %s",

		// Warnings
		"Cleanup failed: %v":            "後始末に失敗しました: %v",
		"Failed to release encoder: %v": "エンコーダーの解放に失敗しました: %v",
		"Failed to release muxer: %v":   "マルチプレクサの解放に失敗しました: %v",
		"Interrupted, shutting down...": "中断されました。シャットダウン中...",
		"Failed to probe %s: %v":        "%s の解析に失敗しました: %v",
		"Failed to write summary: %s":   "サマリーの書き込みに失敗しました: %s",
		"Summary saved to %s":           "サマリーを %s に保存しました",

		// Errors
		"Job %s failed: %v":   "ジョブ %s が失敗しました: %v",
		"Failed: %v":          "失敗しました: %v",
		"Storage failure: %v": "書き込みに失敗しました: %v",
	})
}
