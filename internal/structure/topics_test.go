package structure

import "testing"

const sampleSummary = `## 🚀 現在の焦点
新機能のリリース日程を調整中

## 🌳 トピック・ツリー
- **予算の確認 (完了)**
  - [結論] 今期は現状維持
- **リリース計画 (進行中)**
  - スケジュール調整
    - [ToDo] 田中さんが候補日を出す
  - リスク確認

## ⏱️ 直近ログ
リリースは来月にしたい、とのこと
`

func TestParseTree(t *testing.T) {
	tree := ParseTree(sampleSummary)
	if tree.Markdown != sampleSummary {
		t.Error("Markdown must keep the verbatim model output")
	}
	if len(tree.Topics) != 2 {
		t.Fatalf("got %d root topics, want 2", len(tree.Topics))
	}

	budget := tree.Topics[0]
	if budget.Title != "予算の確認" || budget.Status != StatusCompleted {
		t.Errorf("topic 0 = %q/%s, want 予算の確認/completed", budget.Title, budget.Status)
	}
	if len(budget.Children) != 1 || budget.Children[0].Title != "[結論] 今期は現状維持" {
		t.Errorf("topic 0 children = %+v", budget.Children)
	}

	release := tree.Topics[1]
	if release.Title != "リリース計画" || release.Status != StatusInProgress {
		t.Errorf("topic 1 = %q/%s, want リリース計画/in_progress", release.Title, release.Status)
	}
	if len(release.Children) != 2 {
		t.Fatalf("topic 1 has %d children, want 2", len(release.Children))
	}
	sched := release.Children[0]
	if sched.Title != "スケジュール調整" || len(sched.Children) != 1 {
		t.Errorf("nested child = %+v", sched)
	}
}

func TestParseTreeIgnoresOtherSections(t *testing.T) {
	tree := ParseTree("## 💡 重要ポイント\n- [決定] これはトピックではない\n")
	if len(tree.Topics) != 0 {
		t.Errorf("got %d topics from a non-tree section, want 0", len(tree.Topics))
	}
}

func TestParseTreeMalformedOutput(t *testing.T) {
	tree := ParseTree("すみません、議事録を更新しました。")
	if tree.Empty() {
		t.Error("Empty() = true, the raw Markdown must be kept")
	}
	if len(tree.Topics) != 0 {
		t.Errorf("got %d topics, want 0", len(tree.Topics))
	}
}

func TestTopicTreeEmpty(t *testing.T) {
	if !(TopicTree{}).Empty() {
		t.Error("zero tree must be Empty")
	}
	if (TopicTree{Markdown: "x"}).Empty() {
		t.Error("non-empty Markdown must not be Empty")
	}
}
