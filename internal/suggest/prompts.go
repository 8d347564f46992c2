package suggest

import (
	"fmt"
	"strings"

	"github.com/kaigi-app/kaigi/pkg/types"
)

const validateSystemPrompt = `あなたは会議支援アシスタントです。会議の最新の要約と、現在表示中の発言候補リストを確認し、各候補がまだ議論の流れに合っているか判定してください。前回の要約との差分から話題の変化を読み取ってください。

以下のJSON形式のみで回答してください:
{"needs_update": true/false, "valid_ids": ["まだ有効な候補のID", ...]}

- needs_update: 議論が新しい話題に進み、新しい候補が必要な場合は true
- valid_ids: 現在の議論の流れでもまだ自然に使える候補のIDのみ`

const generateSystemPrompt = `あなたは会議支援アシスタントです。会議の最新の要約を読み、参加者が次に発言できる候補を生成してください。

各候補は以下のいずれかの種類です:
- 提案: 議論を前に進める提案や意見
- 質問: 論点を明確にする質問

以下のJSON配列のみで回答してください:
[{"text": "発言候補", "type": "提案" または "質問", "confidence": 0.0-1.0, "context": "根拠となる議論内容", "reasoning": "この候補を出す理由"}]

- 要約にある議論の流れに自然につながる候補のみを出す
- 要約にない事実を創作しない`

// buildValidatePrompt renders the Stage 1 user message: the active set plus
// the new and previous summaries, so the model can judge what moved on.
func (e *Engine) buildValidatePrompt(newSummary, prevSummary string, active []types.Suggestion) string {
	var b strings.Builder
	writeMeetingContext(&b, e.meetingCtx)

	b.WriteString("## 現在の発言候補\n")
	for _, s := range active {
		fmt.Fprintf(&b, "- id: %s [%s] %s\n", s.ID, s.Kind, s.Text)
	}
	if prevSummary != "" {
		b.WriteString("\n## 前回の要約\n")
		b.WriteString(prevSummary)
		b.WriteString("\n")
	}
	b.WriteString("\n## 最新の要約\n")
	b.WriteString(newSummary)
	return b.String()
}

// buildGeneratePrompt renders the Stage 2 user message. Carryovers are
// listed so the model does not duplicate them.
func (e *Engine) buildGeneratePrompt(summary string, carry []types.Suggestion, needProposals, needQuestions int) string {
	var b strings.Builder
	writeMeetingContext(&b, e.meetingCtx)

	fmt.Fprintf(&b, "提案を%d件、質問を%d件生成してください。\n\n", needProposals, needQuestions)

	if len(carry) > 0 {
		b.WriteString("## 維持される候補(重複を避けること)\n")
		for _, s := range carry {
			fmt.Fprintf(&b, "- [%s] %s\n", s.Kind, s.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 会議の要約\n")
	b.WriteString(summary)
	return b.String()
}

// writeMeetingContext renders the optional meeting background section.
func writeMeetingContext(b *strings.Builder, mc types.MeetingContext) {
	if mc.IsEmpty() {
		return
	}
	b.WriteString("## 会議情報\n")
	if mc.Title != "" {
		fmt.Fprintf(b, "タイトル: %s\n", mc.Title)
	}
	if mc.BackgroundInfo != "" {
		fmt.Fprintf(b, "背景: %s\n", mc.BackgroundInfo)
	}
	if len(mc.Agenda) > 0 {
		fmt.Fprintf(b, "アジェンダ: %s\n", strings.Join(mc.Agenda, " / "))
	}
	if len(mc.Participants) > 0 {
		fmt.Fprintf(b, "参加者: %s\n", strings.Join(mc.Participants, ", "))
	}
	for _, m := range mc.Materials {
		fmt.Fprintf(b, "資料「%s」:\n%s\n", m.Name, m.Content)
	}
	b.WriteString("\n")
}
