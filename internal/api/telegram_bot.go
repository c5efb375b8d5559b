// Package api provides handlers for external APIs and interfaces
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/abelzeko/aguasur/internal/entities"
	"github.com/abelzeko/aguasur/internal/usecases"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const alertListLimit = 10

const helpText = "Comandos disponibles:\n" +
	"/start - Iniciar el bot\n" +
	"/status [estanque] - Nivel y autonomía de un estanque\n" +
	"/alerts - Estanques en alerta\n" +
	"/dashboard - Resumen de la comunidad\n" +
	"/plan - Plan de compra coordinada\n" +
	"/report [tipo] [descripción] - Reportar un problema (running_out, contaminated, infrastructure, other)\n" +
	"/help - Mostrar esta ayuda"

// TelegramBot handles interactions with the Telegram API
type TelegramBot struct {
	bot     *tgbotapi.BotAPI
	useCase *usecases.MonitoringUseCase
	timeout time.Duration
	now     func() time.Time
}

// NewTelegramBot creates a new Telegram bot handler
func NewTelegramBot(botToken string, useCase *usecases.MonitoringUseCase) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &TelegramBot{
		bot:     bot,
		useCase: useCase,
		timeout: 30 * time.Second,
		now:     time.Now,
	}, nil
}

// Start begins listening for and handling Telegram messages until ctx is cancelled
func (t *TelegramBot) Start(ctx context.Context) {
	log.Printf("Authorized on Telegram account %s", t.bot.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	log.Println("Bot is now listening for messages...")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			log.Println("Bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}

			log.Printf("Received message from %s: %s", senderLabel(update.Message), update.Message.Text)

			t.handleMessage(ctx, update)
		}
	}
}

// handleMessage processes a Telegram message update
func (t *TelegramBot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, t.reply(ctx, update.Message))

	log.Printf("Sending response to %s", senderLabel(update.Message))
	if _, err := t.bot.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

// reply builds the response text for a message
func (t *TelegramBot) reply(ctx context.Context, message *tgbotapi.Message) string {
	if message.IsCommand() {
		return t.handleCommand(ctx, message)
	}
	return t.handleNonCommand(ctx, message)
}

// handleCommand processes commands like /start, /help, etc.
func (t *TelegramBot) handleCommand(ctx context.Context, message *tgbotapi.Message) string {
	user := userName(message)
	switch message.Command() {
	case "start":
		log.Printf("Handling /start command for user %s", user)
		return "¡Bienvenido a AguaSur! Usa /status [estanque] para ver tu estanque, /report para avisar un problema o /help para más información."

	case "help":
		log.Printf("Handling /help command for user %s", user)
		return helpText

	case "status":
		args := strings.TrimSpace(message.CommandArguments())
		log.Printf("Handling /status command with args '%s' for user %s", args, user)
		return t.handleStatusCommand(ctx, args, message)

	case "alerts":
		log.Printf("Handling /alerts command for user %s", user)
		list, err := t.useCase.CurrentAlerts(ctx, t.now())
		if err != nil {
			log.Printf("Error evaluating alerts: %v", err)
			return "Error al calcular las alertas. Intenta más tarde."
		}
		return FormatAlerts(list, alertListLimit)

	case "dashboard":
		log.Printf("Handling /dashboard command for user %s", user)
		summary, err := t.useCase.Dashboard(ctx, t.now())
		if err != nil {
			log.Printf("Error building dashboard: %v", err)
			return "Error al generar el resumen. Intenta más tarde."
		}
		return FormatDashboard(summary)

	case "plan":
		log.Printf("Handling /plan command for user %s", user)
		res, err := t.useCase.PlanCoordination(ctx, t.now())
		if err != nil {
			log.Printf("Error planning coordination: %v", err)
			return "Error al calcular el plan de compra. Intenta más tarde."
		}
		return FormatPlan(res)

	case "report":
		args := strings.TrimSpace(message.CommandArguments())
		log.Printf("Handling /report command with args '%s' for user %s", args, user)
		return t.handleReportCommand(ctx, args, message)

	default:
		log.Printf("Received unknown command /%s from user %s", message.Command(), user)
		return "Comando desconocido. Usa /help para ver los comandos disponibles."
	}
}

// handleStatusCommand shows one cistern, or the sender's own when no id is given
func (t *TelegramBot) handleStatusCommand(ctx context.Context, id string, message *tgbotapi.Message) string {
	if id == "" {
		family, c, ok := t.sender(ctx, message)
		if !ok || c == nil {
			return "Indica el estanque. Ejemplo: /status c-001"
		}
		log.Printf("Resolved cistern %s for family %s", c.ID, family.ID)
		id = c.ID
	}

	view, err := t.useCase.CisternStatus(ctx, id, t.now())
	if errors.Is(err, entities.ErrNotFound) {
		return fmt.Sprintf("No existe el estanque '%s'.", id)
	}
	if err != nil {
		log.Printf("Error fetching cistern %s: %v", id, err)
		return "Error al consultar el estanque. Intenta más tarde."
	}
	return FormatCisternStatus(view)
}

// handleReportCommand stores a structured report from "/report <type> <description>"
func (t *TelegramBot) handleReportCommand(ctx context.Context, args string, message *tgbotapi.Message) string {
	kind, description, _ := strings.Cut(args, " ")
	reportType := entities.ReportType(strings.ToLower(kind))
	if !knownReportType(reportType) || strings.TrimSpace(description) == "" {
		return "Uso: /report [tipo] [descripción]. Tipos: running_out, contaminated, infrastructure, other"
	}

	draft := entities.Report{Type: reportType, Description: strings.TrimSpace(description)}
	if family, c, ok := t.sender(ctx, message); ok {
		draft.FamilyID = family.ID
		if c != nil {
			draft.CisternID = c.ID
		}
	}

	cls, err := t.useCase.SubmitReport(ctx, draft)
	if err != nil {
		log.Printf("Error submitting report: %v", err)
		return "No se pudo registrar el reporte. Intenta más tarde."
	}
	return FormatReportReceipt(cls)
}

// handleNonCommand processes regular messages as free-text reports when an interpreter is configured
func (t *TelegramBot) handleNonCommand(ctx context.Context, message *tgbotapi.Message) string {
	log.Printf("Received non-command message from user %s: %s", userName(message), message.Text)
	if strings.TrimSpace(message.Text) == "" {
		return helpText
	}

	var familyID, cisternID string
	if family, c, ok := t.sender(ctx, message); ok {
		familyID = family.ID
		if c != nil {
			cisternID = c.ID
		}
	}

	out, err := t.useCase.SubmitFreeTextReport(ctx, message.Text, familyID, cisternID)
	if errors.Is(err, usecases.ErrInterpreterUnavailable) {
		return "No entiendo mensajes libres todavía. " + helpText
	}
	if err != nil {
		log.Printf("Error interpreting message: %v", err)
		return "No se pudo registrar el reporte. Usa /report [tipo] [descripción]."
	}

	text := FormatReportReceipt(out.Classification)
	if out.UserMessage != "" {
		text = out.UserMessage + "\n\n" + text
	}
	return text
}

// sender resolves the registered family (and its cistern, if any) behind a Telegram user
func (t *TelegramBot) sender(ctx context.Context, message *tgbotapi.Message) (entities.Family, *entities.Cistern, bool) {
	if message.From == nil || message.From.UserName == "" {
		return entities.Family{}, nil, false
	}
	family, err := t.useCase.FamilyByContact(ctx, "@"+message.From.UserName)
	if err != nil {
		return entities.Family{}, nil, false
	}
	c, err := t.useCase.FamilyCistern(ctx, family.ID)
	if err != nil {
		return family, nil, true
	}
	return family, &c, true
}

func userName(message *tgbotapi.Message) string {
	if message.From == nil {
		return ""
	}
	return message.From.UserName
}

// senderLabel describes who wrote message; posts on behalf of a chat carry no user.
func senderLabel(message *tgbotapi.Message) string {
	if message.From != nil {
		return fmt.Sprintf("%s (ID: %d)", message.From.UserName, message.From.ID)
	}
	if message.Chat != nil {
		return fmt.Sprintf("chat %d", message.Chat.ID)
	}
	return "unknown sender"
}

func knownReportType(rt entities.ReportType) bool {
	for _, t := range entities.ReportTypes() {
		if t == rt {
			return true
		}
	}
	return false
}
