package dialogue

import (
	"errors"
	"fmt"

	"role-chatter/internal/ratelimit"
)

var (
	ErrNoActivePersona    = errors.New("no active persona")
	ErrRateLimited        = errors.New("rate limited")
	ErrAttachmentTooLarge = errors.New("attachment too large")
	ErrUnsupportedFormat  = errors.New("unsupported attachment format")
	ErrUnknownPersona     = errors.New("unknown persona")
)

const (
	msgChoosePersona   = "請選擇想要聊天的角色："
	msgSelectFirst     = "請先使用 /start 命令選擇一個角色進行對話。"
	msgNoConversation  = "您還沒有開始任何對話。"
	msgRateLimited     = "目前請求人數過多，請稍後再試。"
	msgTooLarge        = "檔案太大了，請傳送較小的檔案。"
	msgUnsupported     = "不支援這種檔案格式。"
	msgUnknownPersona  = "找不到這個角色，請重新選擇。"
	msgGenericError    = "抱歉，處理您的消息時發生錯誤，請稍後重試。"
	msgNotHeard        = "抱歉，我沒有聽清楚，可以再說一次嗎？"
	msgVoiceModeOn     = "好的，之後我會用語音回覆你。"
	msgAskName         = "請輸入你想為%s取的名字："
	msgNameEmpty       = "名字不能是空白的，請再輸入一次："
	msgSelected        = "您已選擇與 %s 對話。\n請直接發送消息開始聊天，使用 /finish 結束對話。"
	msgSelectedAskName = "您已選擇與 %s 對話。\n" + msgAskName
	msgNameSet         = "從現在起，我就是「%s」了。\n請直接發送消息開始聊天，使用 /finish 結束對話。"
)

// userMessage maps a handler failure onto the text shown to the user.
// Anything unclassified is reported as a generic, retryable failure.
func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoActivePersona):
		return msgSelectFirst
	case errors.Is(err, ErrRateLimited):
		return msgRateLimited
	case errors.Is(err, ErrAttachmentTooLarge):
		return msgTooLarge
	case errors.Is(err, ErrUnsupportedFormat):
		return msgUnsupported
	case errors.Is(err, ErrUnknownPersona):
		return msgUnknownPersona
	default:
		return msgGenericError
	}
}

func rateLimited(class ratelimit.Class) error {
	return fmt.Errorf("%w: %s", ErrRateLimited, class)
}
