package usecase

import "github.com/iamvkosarev/websearch-chat/pkg/local"

var (
	textServerError = local.NewSet(
		"Something went wrong. Try again later.",
		local.NewTrans(local.Rus, "Что-то пошло не так. Попробуйте позже."),
	)
	textNoAccess = local.NewSet(
		"You are not allowed to use this bot.",
		local.NewTrans(local.Rus, "У вас нет доступа к этому боту."),
	)
	textStart = local.NewSet(
		"Welcome! Write something to start a conversation. I can search the web when a question needs fresh data. Use /help to see what else I can do.",
		local.NewTrans(
			local.Rus,
			"Добро пожаловать! Напишите что-нибудь, чтобы начать разговор. Когда вопросу нужны свежие данные, я ищу в интернете. Список возможностей: /help.",
		),
	)
	textHelp = local.NewSet(
		`Write something to talk to the assistant.

/new - start a new chat
/chats - list your chats
/open N - switch to chat N
/delete [N] - delete chat N or the current one
/stop - stop the answer being written
/models - list models
/model NAME - use a model in this chat
/pin NAME|off - default model for new chats
/settings - show your settings
/setkey KEY - set your OpenAI-compatible API key
/setbaseurl URL - set the API base URL
/settavily KEY - set your Tavily API key
/system [PROMPT] - show or change the system prompt
/searchprompt [PROMPT|reset] - show or change the search prompt
/gen DESCRIPTION - generate an image
/search QUERY - search the web and summarize`,
		local.NewTrans(
			local.Rus,
			`Напишите что-нибудь, чтобы поговорить с ассистентом.

/new - новый чат
/chats - список чатов
/open N - перейти в чат N
/delete [N] - удалить чат N или текущий
/stop - остановить ответ
/models - список моделей
/model NAME - модель для этого чата
/pin NAME|off - модель по умолчанию для новых чатов
/settings - ваши настройки
/setkey KEY - ключ OpenAI-совместимого API
/setbaseurl URL - адрес API
/settavily KEY - ключ Tavily
/system [PROMPT] - показать или изменить системную инструкцию
/searchprompt [PROMPT|reset] - показать или изменить инструкцию поиска
/gen DESCRIPTION - сгенерировать изображение
/search QUERY - найти в интернете и кратко изложить`,
		),
	)
	textNewChat = local.NewSet(
		"Started a new chat.",
		local.NewTrans(local.Rus, "Начат новый чат."),
	)
	textChatsHeader = local.NewSet(
		"You have %d chats:",
		local.NewTrans(local.Rus, "Ваши чаты (%d):"),
	)
	textChatLine = local.NewSet(
		"%s%d) %s - messages: %d, model: %s",
		local.NewTrans(local.Rus, "%s%d) %s - сообщений: %d, модель: %s"),
	)
	textChatNumberExpected = local.NewSet(
		"Send the chat number from /chats, for example /open 2.",
		local.NewTrans(local.Rus, "Укажите номер чата из /chats, например /open 2."),
	)
	textChatOpened = local.NewSet(
		"Switched to %q.",
		local.NewTrans(local.Rus, "Открыт чат %q."),
	)
	textChatDeleted = local.NewSet(
		"Chat %q deleted.",
		local.NewTrans(local.Rus, "Чат %q удален."),
	)
	textStopped = local.NewSet(
		"Stopped.",
		local.NewTrans(local.Rus, "Остановлено."),
	)
	textNothingToStop = local.NewSet(
		"Nothing to stop.",
		local.NewTrans(local.Rus, "Нечего останавливать."),
	)
	textModelsHeader = local.NewSet(
		"Available models (current: %s):",
		local.NewTrans(local.Rus, "Доступные модели (текущая: %s):"),
	)
	textModelExpected = local.NewSet(
		"Send a model name, for example /model gpt-4o. See /models.",
		local.NewTrans(local.Rus, "Укажите модель, например /model gpt-4o. Список: /models."),
	)
	textModelSelected = local.NewSet(
		"This chat now uses %s.",
		local.NewTrans(local.Rus, "Теперь в этом чате используется %s."),
	)
	textModelPinned = local.NewSet(
		"New chats will use %s.",
		local.NewTrans(local.Rus, "Новые чаты будут использовать %s."),
	)
	textModelUnpinned = local.NewSet(
		"Pinned model removed.",
		local.NewTrans(local.Rus, "Модель по умолчанию сброшена."),
	)
	textSettings = local.NewSet(
		"Model: %s\nPinned model: %s\nBase URL: %s\nAPI key: %s\nTavily key: %s\n\nSystem prompt:\n%s",
		local.NewTrans(
			local.Rus,
			"Модель: %s\nМодель по умолчанию: %s\nАдрес API: %s\nКлюч API: %s\nКлюч Tavily: %s\n\nСистемная инструкция:\n%s",
		),
	)
	textSettingsSaved = local.NewSet(
		"Saved.",
		local.NewTrans(local.Rus, "Сохранено."),
	)
	textValueExpected = local.NewSet(
		"Send the value after the command, for example /%s VALUE.",
		local.NewTrans(local.Rus, "Укажите значение после команды, например /%s VALUE."),
	)
	textSystemPrompt = local.NewSet(
		"Current system prompt:\n%s",
		local.NewTrans(local.Rus, "Текущая системная инструкция:\n%s"),
	)
	textSearchPrompt = local.NewSet(
		"Current search prompt:\n%s",
		local.NewTrans(local.Rus, "Текущая инструкция поиска:\n%s"),
	)
	textBusy = local.NewSet(
		"I'm still answering your previous message. Use /stop to interrupt it.",
		local.NewTrans(local.Rus, "Я еще отвечаю на предыдущее сообщение. Прервать: /stop."),
	)
	textConfigure = local.NewSet(
		"Please configure your credentials: %s\nUse /setkey, /setbaseurl and /settavily.",
		local.NewTrans(local.Rus, "Настройте доступ: %s\nИспользуйте /setkey, /setbaseurl и /settavily."),
	)
	textNotSet = local.NewSet(
		"not set",
		local.NewTrans(local.Rus, "не задано"),
	)
)
