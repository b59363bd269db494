package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"pandapal_bot/internal/games"
	"pandapal_bot/internal/storage"
	"pandapal_bot/internal/tutor"
	"pandapal_bot/pkg/metrics"
)

// UserState represents the current state of user in the dialog flow
type UserState int

const (
	StateIdle UserState = iota
	StateWaitingName
	StateWaitingAge
	StateQuiz
)

// Callback button data
const (
	CallbackMainMenu     = "main_menu"
	CallbackStartQuiz    = "start_quiz"
	CallbackStopQuiz     = "stop_quiz"
	CallbackViewProfile   = "view_profile"
	CallbackEditProfile   = "edit_profile"
	CallbackDeleteProfile = "delete_profile"
	CallbackConfirmDelete = "confirm_delete"
	CallbackSubscription  = "subscription"
)

const (
	minAge = 4
	maxAge = 16
)

// Bot handles Telegram commands, the onboarding flow, tutor chat and the quiz
// mini-game. All AI traffic goes through the tutor service, which in turn runs
// every provider call inside the shared request gate.
type Bot struct {
	api   *tgbotapi.BotAPI
	tutor *tutor.Service
	store storage.Store
	log   *zap.SugaredLogger

	// Per-chat dialog state
	userStates map[int64]UserState
	quizzes    map[int64]games.Question
	mu         sync.RWMutex
}

// New creates a new Telegram bot instance. The token is required.
func New(token string, tutorSvc *tutor.Service, store storage.Store, logger *zap.SugaredLogger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	bot := &Bot{
		api:        api,
		tutor:      tutorSvc,
		store:      store,
		log:        logger,
		userStates: make(map[int64]UserState),
		quizzes:    make(map[int64]games.Question),
	}

	bot.log.Infow("telegram bot authorized", "username", api.Self.UserName)
	return bot, nil
}

// Run starts the bot's update loop. It blocks until context is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	b.log.Info("telegram bot started, waiting for messages")

	for {
		select {
		case <-ctx.Done():
			b.log.Info("telegram bot: context cancelled, stopping")
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.CallbackQuery != nil {
				go b.handleCallbackQuery(ctx, update.CallbackQuery)
			} else if update.Message != nil {
				go b.handleMessage(ctx, update.Message)
			}
		}
	}
}

// SendMessage sends a message to the specified chat ID.
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.api.Send(msg)
	if err != nil {
		b.log.Warnw("failed to send telegram message", "chat_id", chatID, "err", err)
		metrics.TelegramSendErrors.Inc()
		return err
	}
	return nil
}

// SendMessageWithKeyboard sends a message with inline keyboard
func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	if err != nil {
		b.log.Warnw("failed to send telegram message with keyboard", "chat_id", chatID, "err", err)
		metrics.TelegramSendErrors.Inc()
		return err
	}
	return nil
}

// CreateMainMenu creates the main menu keyboard
func (b *Bot) CreateMainMenu() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎮 Мини-игра", CallbackStartQuiz),
			tgbotapi.NewInlineKeyboardButtonData("👤 Мой профиль", CallbackViewProfile),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⭐ Подписка", CallbackSubscription),
		),
	)
}

// CreateQuizKeyboard creates the in-quiz keyboard
func (b *Bot) CreateQuizKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🚪 Закончить игру", CallbackStopQuiz),
		),
	)
}

func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	chatID := query.Message.Chat.ID
	data := query.Data

	// Answer callback query to remove loading state
	b.api.Request(tgbotapi.NewCallback(query.ID, ""))

	b.log.Debugw("received callback query", "chat_id", chatID, "data", data)

	switch data {
	case CallbackMainMenu:
		b.showMainMenu(ctx, chatID)
	case CallbackStartQuiz:
		b.handleStartQuiz(ctx, chatID)
	case CallbackStopQuiz:
		b.handleStopQuiz(ctx, chatID)
	case CallbackViewProfile:
		b.handleViewProfile(ctx, chatID)
	case CallbackEditProfile:
		b.startOnboarding(chatID)
	case CallbackDeleteProfile:
		b.handleDeleteProfileButton(chatID)
	case CallbackConfirmDelete:
		b.handleConfirmDelete(ctx, chatID)
	case CallbackSubscription:
		b.handleSubscription(ctx, chatID)
	default:
		b.SendMessage(chatID, "❓ Неизвестная команда")
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.Text == "" {
		return
	}

	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	b.log.Debugw("received telegram message", "chat_id", chatID, "len", len(text))

	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, chatID, strings.ToLower(text))
		return
	}

	switch b.getUserState(chatID) {
	case StateWaitingName:
		b.handleNameInput(ctx, chatID, text)
	case StateWaitingAge:
		b.handleAgeInput(ctx, chatID, text)
	case StateQuiz:
		b.handleQuizAnswer(ctx, chatID, text)
	default:
		b.handleTutorMessage(ctx, chatID, text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, command string) {
	switch command {
	case "/start":
		user, err := b.store.GetUser(ctx, chatID)
		if err != nil {
			b.log.Errorw("get user failed", "chat_id", chatID, "err", err)
			metrics.IncrementDatabaseError("get_user")
		}
		if user == nil {
			b.startOnboarding(chatID)
			return
		}
		b.showMainMenu(ctx, chatID)
	case "/help":
		b.showHelp(chatID)
	case "/profile":
		b.handleViewProfile(ctx, chatID)
	case "/quiz":
		b.handleStartQuiz(ctx, chatID)
	case "/stop":
		b.handleStopQuiz(ctx, chatID)
	default:
		b.SendMessage(chatID, "❓ Неизвестная команда. Напишите /help")
	}
}

func (b *Bot) showHelp(chatID int64) {
	msg := `🐼 *PandaPal — твой помощник в учебе*

Просто напиши мне вопрос, и я помогу разобраться!

*Команды:*
/start — главное меню
/profile — мой профиль
/quiz — мини-игра с примерами
/stop — закончить игру
/help — эта справка`
	b.SendMessage(chatID, msg)
}

func (b *Bot) showMainMenu(ctx context.Context, chatID int64) {
	b.resetUserState(chatID)

	user, _ := b.store.GetUser(ctx, chatID)
	msg := "🐼 *PandaPal*\n\nНапиши мне любой вопрос — помогу с учебой!\nИли выбери действие из меню:"
	if user != nil && user.Name != "" {
		msg = fmt.Sprintf("🐼 *PandaPal*\n\nПривет, %s! Напиши мне любой вопрос — помогу с учебой!\nИли выбери действие из меню:", user.Name)
	}

	b.SendMessageWithKeyboard(chatID, msg, b.CreateMainMenu())
}

// --- onboarding ---

func (b *Bot) startOnboarding(chatID int64) {
	b.setUserState(chatID, StateWaitingName)
	msg := `🐼 *Привет! Я ПандаПал.*

Я помогаю ребятам с учебой: отвечаю на вопросы, объясняю сложное простыми словами и играю в обучающие игры.

Давай познакомимся! *Как тебя зовут?*`
	b.SendMessage(chatID, msg)
}

func (b *Bot) handleNameInput(ctx context.Context, chatID int64, name string) {
	if name == "" || len(name) > 64 {
		b.SendMessage(chatID, "🙈 Напиши, пожалуйста, свое имя одним коротким сообщением.")
		return
	}

	user, _ := b.store.GetUser(ctx, chatID)
	if user == nil {
		user = &storage.User{ChatID: chatID}
	}
	user.Name = name
	if err := b.store.SaveUser(ctx, user); err != nil {
		b.log.Errorw("save user failed", "chat_id", chatID, "err", err)
		metrics.IncrementDatabaseError("save_user")
		b.SendMessage(chatID, "❌ Что-то пошло не так. Попробуй еще раз чуть позже.")
		return
	}

	b.setUserState(chatID, StateWaitingAge)
	b.SendMessage(chatID, fmt.Sprintf("Приятно познакомиться, %s! 🐾\n\n*Сколько тебе лет?* (напиши цифрой)", name))
}

func (b *Bot) handleAgeInput(ctx context.Context, chatID int64, text string) {
	age, err := strconv.Atoi(text)
	if err != nil || age < minAge || age > maxAge {
		b.SendMessage(chatID, fmt.Sprintf("🙈 Напиши возраст цифрой, от %d до %d лет.", minAge, maxAge))
		return
	}

	user, _ := b.store.GetUser(ctx, chatID)
	if user == nil {
		user = &storage.User{ChatID: chatID}
	}
	user.Age = age
	if err := b.store.SaveUser(ctx, user); err != nil {
		b.log.Errorw("save user failed", "chat_id", chatID, "err", err)
		metrics.IncrementDatabaseError("save_user")
		b.SendMessage(chatID, "❌ Что-то пошло не так. Попробуй еще раз чуть позже.")
		return
	}

	b.resetUserState(chatID)
	msg := fmt.Sprintf(`✅ *Отлично, %s!*

Теперь просто напиши мне любой вопрос — по математике, русскому, окружающему миру или о чем угодно еще.

А еще у меня есть мини-игра с примерами 🎮`, user.Name)
	b.SendMessageWithKeyboard(chatID, msg, b.CreateMainMenu())
}

// --- tutor chat ---

func (b *Bot) handleTutorMessage(ctx context.Context, chatID int64, text string) {
	user, err := b.store.GetUser(ctx, chatID)
	if err != nil {
		b.log.Errorw("get user failed", "chat_id", chatID, "err", err)
		metrics.IncrementDatabaseError("get_user")
	}
	if user == nil {
		b.startOnboarding(chatID)
		return
	}

	// Typing indicator while the request waits in the gate and the model thinks.
	b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

	reply, err := b.tutor.Reply(ctx, user, text)
	if err != nil {
		if errors.Is(err, tutor.ErrDailyLimitReached) {
			msg := `😴 *На сегодня вопросы закончились*

Бесплатные вопросы на сегодня использованы. Приходи завтра!

С подпиской ⭐ можно общаться без ограничений.`
			b.SendMessageWithKeyboard(chatID, msg, b.CreateMainMenu())
			return
		}
		b.log.Errorw("tutor reply failed", "chat_id", chatID, "err", err)
		b.SendMessage(chatID, "😔 Я немного запутался. Попробуй спросить еще раз!")
		return
	}

	b.SendMessage(chatID, reply)
}

// --- quiz mini-game ---

func (b *Bot) handleStartQuiz(ctx context.Context, chatID int64) {
	user, _ := b.store.GetUser(ctx, chatID)
	if user == nil {
		b.startOnboarding(chatID)
		return
	}

	q := games.Generate(user.Age)
	b.setQuiz(chatID, q)
	b.setUserState(chatID, StateQuiz)

	msg := fmt.Sprintf("🎮 *Реши пример:*\n\n*%s*\n\nНапиши ответ цифрой!", q.Prompt)
	b.SendMessageWithKeyboard(chatID, msg, b.CreateQuizKeyboard())
}

func (b *Bot) handleQuizAnswer(ctx context.Context, chatID int64, text string) {
	q, ok := b.getQuiz(chatID)
	if !ok {
		b.showMainMenu(ctx, chatID)
		return
	}

	correct, err := games.Check(q, text)
	if err != nil {
		b.SendMessageWithKeyboard(chatID, "🙈 Напиши ответ цифрой, например: 7", b.CreateQuizKeyboard())
		return
	}

	metrics.IncrementQuizAnswer(correct)
	if saveErr := b.store.RecordQuizAnswer(ctx, chatID, correct); saveErr != nil {
		b.log.Warnw("record quiz answer failed", "chat_id", chatID, "err", saveErr)
		metrics.IncrementDatabaseError("record_quiz_answer")
	}

	var verdict string
	if correct {
		verdict = "🎉 *Правильно!* Молодец!"
	} else {
		verdict = fmt.Sprintf("🙃 Не совсем. Правильный ответ: *%d*", q.Answer)
	}

	user, _ := b.store.GetUser(ctx, chatID)
	age := 0
	if user != nil {
		age = user.Age
	}
	next := games.Generate(age)
	b.setQuiz(chatID, next)

	msg := fmt.Sprintf("%s\n\n*Следующий пример:*\n\n*%s*", verdict, next.Prompt)
	b.SendMessageWithKeyboard(chatID, msg, b.CreateQuizKeyboard())
}

func (b *Bot) handleStopQuiz(ctx context.Context, chatID int64) {
	b.resetUserState(chatID)

	correct, total, err := b.store.QuizTotals(ctx, chatID)
	if err != nil {
		b.log.Warnw("quiz totals failed", "chat_id", chatID, "err", err)
		metrics.IncrementDatabaseError("quiz_totals")
	}

	msg := "🏁 *Игра окончена!*"
	if total > 0 {
		msg = fmt.Sprintf("🏁 *Игра окончена!*\n\nТвой общий счет: *%d из %d* правильных ответов. Так держать! 💪", correct, total)
	}
	b.SendMessageWithKeyboard(chatID, msg, b.CreateMainMenu())
}

// --- profile & subscription ---

func (b *Bot) handleViewProfile(ctx context.Context, chatID int64) {
	user, err := b.store.GetUser(ctx, chatID)
	if err != nil || user == nil {
		b.startOnboarding(chatID)
		return
	}

	correct, total, _ := b.store.QuizTotals(ctx, chatID)

	sub := "бесплатная"
	if user.Premium {
		sub = "⭐ премиум"
	}

	msg := fmt.Sprintf("👤 *Твой профиль*\n\n"+
		"*Имя:* %s\n"+
		"*Возраст:* %d\n"+
		"*Подписка:* %s\n"+
		"*Счет в игре:* %d из %d\n\n"+
		"*С нами с:* %s",
		user.Name, user.Age, sub, correct, total,
		user.CreatedAt.Format("02.01.2006"))

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✏️ Изменить профиль", CallbackEditProfile),
			tgbotapi.NewInlineKeyboardButtonData("⬅️ Меню", CallbackMainMenu),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Удалить профиль", CallbackDeleteProfile),
		),
	)
	b.SendMessageWithKeyboard(chatID, msg, keyboard)
}

// CreateConfirmDeleteKeyboard creates confirmation buttons for profile deletion
func (b *Bot) CreateConfirmDeleteKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Да, удалить", CallbackConfirmDelete),
			tgbotapi.NewInlineKeyboardButtonData("❌ Отменить", CallbackMainMenu),
		),
	)
}

func (b *Bot) handleDeleteProfileButton(chatID int64) {
	msg := `⚠️ *ВНИМАНИЕ!*

Удалить профиль и все данные?

Это действие нельзя отменить!
Будут удалены:
• Имя и возраст
• Вся история общения
• Счет в мини-игре`
	b.SendMessageWithKeyboard(chatID, msg, b.CreateConfirmDeleteKeyboard())
}

func (b *Bot) handleConfirmDelete(ctx context.Context, chatID int64) {
	if err := b.deleteProfile(ctx, chatID); err != nil {
		b.log.Errorw("failed to delete profile", "chat_id", chatID, "err", err)
		metrics.IncrementDatabaseError("delete_user")
		b.SendMessage(chatID, "❌ Ошибка при удалении. Попробуй позже.")
		return
	}

	b.SendMessage(chatID, "✅ *Профиль удален*\n\nВсе данные стерты. Давай познакомимся заново!")
	b.startOnboarding(chatID)
}

// deleteProfile removes the stored profile together with the in-memory dialog
// state, so the next message starts a clean onboarding.
func (b *Bot) deleteProfile(ctx context.Context, chatID int64) error {
	if err := b.store.DeleteUser(ctx, chatID); err != nil {
		return err
	}
	b.resetUserState(chatID)
	return nil
}

func (b *Bot) handleSubscription(ctx context.Context, chatID int64) {
	user, _ := b.store.GetUser(ctx, chatID)

	var msg string
	if user != nil && user.Premium {
		msg = `⭐ *Премиум-подписка активна*

Тебе доступно неограниченное общение с ПандаПалом. Спасибо!`
	} else {
		msg = `⭐ *Подписка*

Сейчас у тебя бесплатный тариф с ограничением вопросов в день.

Премиум-подписка снимает ограничения. Попроси родителей оформить ее на сайте PandaPal.`
	}
	b.SendMessageWithKeyboard(chatID, msg, b.CreateMainMenu())
}

// --- state management helpers ---

func (b *Bot) getUserState(chatID int64) UserState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.userStates[chatID]
}

func (b *Bot) setUserState(chatID int64, state UserState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userStates[chatID] = state
}

func (b *Bot) resetUserState(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.userStates, chatID)
	delete(b.quizzes, chatID)
}

func (b *Bot) getQuiz(chatID int64) (games.Question, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quizzes[chatID]
	return q, ok
}

func (b *Bot) setQuiz(chatID int64, q games.Question) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quizzes[chatID] = q
}
