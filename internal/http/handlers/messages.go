package handlers

// messages holds the localized error strings served to clients. English is
// the fallback for any locale or id without a translation.
var messages = map[string]map[string]string{
	"invalid_payload": {
		"en": "The request body could not be parsed.",
		"zh": "无法解析请求内容。",
	},
	"video_path_required": {
		"en": "A video path is required to start generation.",
		"zh": "开始生成前必须提供视频路径。",
	},
	"task_not_found": {
		"en": "No generation session with that task ID.",
		"zh": "找不到该任务 ID 对应的生成会话。",
	},
	"record_not_found": {
		"en": "No saved comic with that ID.",
		"zh": "找不到该 ID 对应的漫画记录。",
	},
	"generation_busy": {
		"en": "Another generation is already running for this task.",
		"zh": "该任务已有正在进行的生成。",
	},
	"internal_error": {
		"en": "Something went wrong on our side.",
		"zh": "服务器内部出现问题。",
	},
}

func localize(locale, msgid string) string {
	byLocale, ok := messages[msgid]
	if !ok {
		return msgid
	}
	if msg, ok := byLocale[locale]; ok {
		return msg
	}
	return byLocale["en"]
}
