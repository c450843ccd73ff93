package summarizer

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		"Encoding Summary": "エンコードサマリー",
		"Generated":        "生成日時",
		"Results":          "実行結果",
		"Settings":         "設定",
		"Tracks":           "トラック",
		"Item":             "項目",
		"Value":            "値",

		// Results section
		"Output":         "出力",
		"Status":         "状態",
		"Succeeded":      "成功",
		"Failed":         "失敗",
		"Encoder":        "エンコーダー",
		"Elapsed":        "処理時間",
		"File Size":      "ファイルサイズ",
		"Video Duration": "動画再生時間",
		"Brands":         "ブランド",
		"Job ID":         "ジョブID",

		// Settings section
		"Codec":             "コーデック",
		"Frame Size":        "フレームサイズ",
		"Frame Rate":        "フレームレート",
		"Bit Rate":          "ビットレート",
		"Keyframe Interval": "キーフレーム間隔",
		"Every frame":       "全フレーム",
		"Images":            "画像数",
		"Frames per Image":  "画像あたりのフレーム数",
		"Audio Source":      "音声ソース",
		"Audio Mode":        "音声モード",
		"None":              "なし",

		// Tracks section
		"Kind":      "種別",
		"Samples":   "サンプル数",
		"Duration":  "再生時間",
		"Details":   "詳細",
		"keyframes": "キーフレーム",

		"Generated by": "生成:",
	})
}
