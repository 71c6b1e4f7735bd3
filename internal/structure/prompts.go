package structure

import "fmt"

// realtimeSystemPrompt drives the incremental structuring call. The format
// constraints keep the output machine-stable: no prose outside the sections,
// completed topics compressed to their conclusions.
const realtimeSystemPrompt = `リアルタイム会話を構造化し、議事録を更新してください。

# 制約
- 修正報告・挨拶・前置き・思考過程を出力しないこと
- 指定フォーマット以外のテキストを含めないこと

# ノイズ補正
音声認識の誤変換・フィラー（"えー"等）を文脈から判断して修正・削除してください。

# 構造化ルール
- アクティブな話題: 詳細に記録
- 完了した話題: 大トピックと結論のみ残す（圧縮）

# 出力（Markdown）
## 🚀 現在の焦点
(現在話されている内容を1行で)

## 🌳 トピック・ツリー
- **話題1 (完了)**
  - [結論] 〇〇
- **話題2 (進行中)**
  - 議論ポイントA
    - [ToDo] 担当者・内容

## ⏱️ 直近ログ
(補正済み発言を時系列で3件程度)
`

// finalSystemPrompt drives the one-shot summary generated at shutdown from
// the complete transcript.
const finalSystemPrompt = `会話全体を俯瞰し、包括的なサマリを生成してください。

# 制約
- 修正報告・挨拶・前置き・思考過程を出力しないこと
- 指定フォーマット以外のテキストを含めないこと

# ノイズ補正
音声認識の誤変換・フィラーを文脈から判断して修正・削除してください。

# 構造化
会話の性質（会議/講義/雑談/インタビュー等）を推定し、適切に構造化してください。

# 出力（Markdown）
## 📋 会話の概要
(全体を2-3行で。性質も含む)

## 🌳 トピック・ツリー
- **メイントピック1**
  - サブトピック1-1
    - [結論/要点] 〇〇
    - [ToDo] 担当者・内容

## 💡 重要ポイント
- [決定] 〇〇
- [ToDo] 担当者・内容（期限）
- [疑問] 未解決事項

## 🔑 キーワード
` + "`キーワード1`, `キーワード2`" + `, ...（5-10個）
`

func buildRealtimeUserPrompt(priorMarkdown, newText string) string {
	context := priorMarkdown
	if context == "" {
		context = "(まだ議事録はありません)"
	}
	return fmt.Sprintf("【現在の議事録】\n%s\n\n【新しい発言（音声認識生データ・誤字含む）】\n%s\n", context, newText)
}

func buildFinalUserPrompt(fullTranscript string) string {
	return fmt.Sprintf("以下は、会話の全文です（音声認識生データ・誤字含む）。\n会話全体を俯瞰して、包括的なサマリを生成してください。\n\n【全発言テキスト】\n%s\n", fullTranscript)
}
