package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"role-chatter/internal/storage"
)

// DailyStats is the usage of one calendar day.
type DailyStats struct {
	Date          string                   `json:"date"`
	TotalMessages int                      `json:"total_messages"`
	UniqueUsers   int                      `json:"unique_users"`
	VoiceReplies  int                      `json:"voice_replies"`
	ByPersona     map[string]int           `json:"by_persona"`
	ByModality    map[storage.Modality]int `json:"by_modality"`
	UserStats     map[int64]UserStats      `json:"user_stats"`
}

// UserStats is one user's share of the day.
type UserStats struct {
	UserID    int64          `json:"user_id"`
	Messages  int            `json:"messages"`
	ByPersona map[string]int `json:"by_persona"`
}

// AnalyzeDailyLogs aggregates the events whose timestamp falls on
// targetDate in targetDate's location.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:       startOfDay.Format("2006-01-02"),
		ByPersona:  make(map[string]int),
		ByModality: make(map[storage.Modality]int),
		UserStats:  make(map[int64]UserStats),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserMessage == "" {
			continue
		}

		stats.TotalMessages++
		stats.ByPersona[event.PersonaID]++
		modality := event.Modality
		if modality == "" {
			modality = storage.ModalityText
		}
		stats.ByModality[modality]++
		if event.VoiceReply {
			stats.VoiceReplies++
		}

		userStat, ok := stats.UserStats[event.UserID]
		if !ok {
			userStat = UserStats{UserID: event.UserID, ByPersona: make(map[string]int)}
		}
		userStat.Messages++
		userStat.ByPersona[event.PersonaID]++
		stats.UserStats[event.UserID] = userStat
	}

	stats.UniqueUsers = len(stats.UserStats)
	return stats
}

// GenerateReportSummary renders the stats as the admin report text.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "角色聊天機器人 %s 使用統計：\n\n", ds.Date)
	fmt.Fprintf(&b, "總訊息數：%d\n", ds.TotalMessages)
	fmt.Fprintf(&b, "不重複用戶：%d\n", ds.UniqueUsers)
	fmt.Fprintf(&b, "語音回覆：%d\n", ds.VoiceReplies)

	if len(ds.ByModality) > 0 {
		b.WriteString("\n輸入類型：\n")
		for _, m := range []storage.Modality{storage.ModalityText, storage.ModalityVoice, storage.ModalityImage} {
			if n := ds.ByModality[m]; n > 0 {
				fmt.Fprintf(&b, "- %s：%d\n", modalityLabel(m), n)
			}
		}
	}

	if len(ds.ByPersona) > 0 {
		b.WriteString("\n角色熱度：\n")
		for _, id := range sortedByCount(ds.ByPersona) {
			fmt.Fprintf(&b, "- %s：%d\n", id, ds.ByPersona[id])
		}
	}

	if len(ds.UserStats) > 0 {
		fmt.Fprintf(&b, "\n用戶活躍度（%d 位）：\n", len(ds.UserStats))
		ids := make([]int64, 0, len(ds.UserStats))
		for id := range ds.UserStats {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			a, c := ds.UserStats[ids[i]], ds.UserStats[ids[j]]
			if a.Messages != c.Messages {
				return a.Messages > c.Messages
			}
			return ids[i] < ids[j]
		})
		for _, id := range ids {
			fmt.Fprintf(&b, "- 用戶 %d：%d 則訊息\n", id, ds.UserStats[id].Messages)
		}
	}
	return b.String()
}

// Loader reads the interaction log back.
type Loader interface {
	LoadInteractions() ([]storage.Event, error)
}

// DailyReport loads the interaction log and summarizes the given day.
func DailyReport(l Loader, day time.Time) (string, error) {
	events, err := l.LoadInteractions()
	if err != nil {
		return "", fmt.Errorf("load interactions: %w", err)
	}
	return AnalyzeDailyLogs(events, day).GenerateReportSummary(), nil
}

// ToJSON serializes the stats for detailed inspection.
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func modalityLabel(m storage.Modality) string {
	switch m {
	case storage.ModalityVoice:
		return "語音"
	case storage.ModalityImage:
		return "圖片"
	default:
		return "文字"
	}
}

func sortedByCount(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
