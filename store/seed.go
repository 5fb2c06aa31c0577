package store

import (
	"fmt"
	"time"
)

// timestampLayout matches the zh-TW display format the client has always
// used for message and trace times.
const timestampLayout = "2006/01/02 15:04"

// FormatTime renders t in the client's display format.
func FormatTime(t time.Time) string {
	return t.Format(timestampLayout)
}

// WelcomeMessage is the assistant greeting seeded into every new conversation.
const WelcomeMessage = "👋 您好！我是企業智能助理。\n\n我可以協助您：\n• 資料分析與洞察\n• 知識檢索與整合\n• 文件生成與優化\n\n請告訴我您需要什麼協助？"

// DefaultTitle builds the timestamped placeholder title for a new conversation.
func DefaultTitle(t time.Time) string {
	return fmt.Sprintf("新對話 %s", t.Format("15:04"))
}

// seedConversations returns the default conversation set used when no
// persisted state exists yet.
func seedConversations(now func() time.Time, newID func() string) []*Conversation {
	ts := FormatTime(now())
	return []*Conversation{
		{
			ID:        newID(),
			Title:     "教育市場週報",
			CreatedAt: now().Add(-6 * time.Hour),
			Messages: []Message{
				{Role: RoleAssistant, Content: "我已整理本週教育科技市場走勢，協助你掌握目標客群和新品上市節奏。", Timestamp: ts},
				{Role: RoleUser, Content: "幫我統整高中職市場導入混成教學時的痛點。", Timestamp: ts},
				{Role: RoleAssistant, Content: "主要痛點有三項：\n1. 教師數位教材不足\n2. 校務系統整合繁瑣\n3. 家長對資料隱私的疑慮", Timestamp: ts},
				{Role: RoleUser, Content: "最快怎麼做才能低成本試行？", Timestamp: ts},
				{Role: RoleAssistant, Content: "建議先以模組化 API 打包教材，再用簡易儀表板協助教務處快速部署。", Timestamp: ts},
			},
		},
		{
			ID:        newID(),
			Title:     "客服話術草稿",
			CreatedAt: now().Add(-3 * time.Hour),
			Messages: []Message{
				{Role: RoleAssistant, Content: "我整理了針對新客戶的開場白，可以凸顯本季方案的價值。", Timestamp: ts},
				{Role: RoleUser, Content: "幫我補上費用說明，以及跨區使用的差異。", Timestamp: ts},
				{Role: RoleAssistant, Content: "已補上：方案、費用、常見疑問三段式，並在結尾提醒改期方式。", Timestamp: ts},
				{Role: RoleUser, Content: "記得在結尾邀請他預約七天試用。", Timestamp: ts},
			},
		},
		{
			ID:        newID(),
			Title:     "數據洞察回顧",
			CreatedAt: now().Add(-45 * time.Minute),
			Messages: []Message{
				{Role: RoleAssistant, Content: "本週轉換率 13.8%，較上週提升 2.6%，主因是新導入的引導流程。", Timestamp: ts},
				{Role: RoleUser, Content: "請把第二步驟的下降趨勢拆成兩個重點說明。", Timestamp: ts},
				{Role: RoleAssistant, Content: "重點 A：用戶仍會停留在比較頁；重點 B：示範影片的 CTA 不夠明顯。", Timestamp: ts},
				{Role: RoleUser, Content: "幫我把這兩點轉成列點腳本，下午戰情會要用。", Timestamp: ts},
			},
		},
		{
			ID:        newID(),
			Title:     "行銷活動激勵",
			CreatedAt: now().Add(-10 * time.Minute),
			Messages: []Message{
				{Role: RoleAssistant, Content: "準備舉辦季度客戶交流日，你想聚焦哪些亮點？", Timestamp: ts},
				{Role: RoleUser, Content: "我想分享成功案例、治理最佳實務，並安排知識盤點工作坊。", Timestamp: ts},
				{Role: RoleAssistant, Content: "了解，我會把流程拆成三段並加上 EDM 口吻的邀請詞。", Timestamp: ts},
			},
		},
	}
}
