package data

import "fmt"

const (
	LocaleEnglish = "en"
	LocaleChinese = "zh"
)

var SupportedLocales = []string{LocaleEnglish, LocaleChinese}

// Messages holds the user-facing strings for one locale.
type Messages struct {
	limitReachedParagraph string
	limitReachedSelection string
	activationSucceeded   string
	activationFailed      string
	networkError          string
	emptyCode             string
	proStatus             string
	freeStatus            string
}

var catalog = map[string]Messages{
	LocaleEnglish: {
		limitReachedParagraph: "Daily paragraph translation limit reached (%d/%d), please try again tomorrow or enter a license code",
		limitReachedSelection: "Daily selection translation limit reached (%d/%d), please try again tomorrow or enter a license code",
		activationSucceeded:   "License activated! Valid for one year. (%d/%d devices bound)",
		activationFailed:      "activation failed",
		networkError:          "network error",
		emptyCode:             "please enter a license code",
		proStatus:             "Pro user - %d days left (%d/%d devices)",
		freeStatus:            "Free user - remaining today: paragraph %d, selection %d",
	},
	LocaleChinese: {
		limitReachedParagraph: "今日段落翻译次数已用完 (%d/%d)，请明天再试或输入授权码",
		limitReachedSelection: "今日划词翻译次数已用完 (%d/%d)，请明天再试或输入授权码",
		activationSucceeded:   "授权成功！有效期一年。(已绑定 %d/%d 个设备)",
		activationFailed:      "授权失败",
		networkError:          "网络错误，请稍后重试",
		emptyCode:             "请输入授权码",
		proStatus:             "Pro 用户 - 剩余 %d 天 (%d/%d 设备)",
		freeStatus:            "免费用户 - 今日剩余: 段落翻译 %d 次, 划词翻译 %d 次",
	},
}

// MessagesFor returns the catalog for locale, falling back to English.
func MessagesFor(locale string) Messages {
	if m, ok := catalog[locale]; ok {
		return m
	}
	return catalog[LocaleEnglish]
}

func (m Messages) LimitReached(action ActionType, limit int) string {
	if action == ActionParagraph {
		return fmt.Sprintf(m.limitReachedParagraph, limit, limit)
	}
	return fmt.Sprintf(m.limitReachedSelection, limit, limit)
}

func (m Messages) ActivationSucceeded(deviceCount, maxDevices int) string {
	return fmt.Sprintf(m.activationSucceeded, deviceCount, maxDevices)
}

func (m Messages) ActivationFailed() string {
	return m.activationFailed
}

func (m Messages) NetworkError() string {
	return m.networkError
}

func (m Messages) EmptyCode() string {
	return m.emptyCode
}

func (m Messages) ProStatus(daysLeft, deviceCount, maxDevices int) string {
	return fmt.Sprintf(m.proStatus, daysLeft, deviceCount, maxDevices)
}

func (m Messages) FreeStatus(paragraphRemaining, selectionRemaining int) string {
	return fmt.Sprintf(m.freeStatus, paragraphRemaining, selectionRemaining)
}
