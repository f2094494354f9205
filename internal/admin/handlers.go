package admin

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"remnashop/internal/db"
	"remnashop/internal/logger"
	"remnashop/internal/services"
)

// ErrUnknownCommand is returned by Execute for commands it does not serve.
var ErrUnknownCommand = errors.New("unknown admin command")

// UsageError is a malformed command; its text is shown to the admin as is.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string {
	return "Использование: " + e.Usage
}

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Dependencies struct {
	Promocodes   *services.PromocodeService
	Plans        *db.PlanRepo
	Gateways     *db.GatewayRepo
	WebhookLogs  *db.WebhookLogRepo
	Users        *db.UserRepo
	Subs         *db.SubscriptionRepo
	Transactions *db.TransactionRepo
	Logger       *zap.Logger
}

type Handler struct {
	adminID int64
	deps    Dependencies
	log     *zap.Logger
}

func NewHandler(adminID int64, deps Dependencies) *Handler {
	return &Handler{adminID: adminID, deps: deps, log: deps.Logger}
}

func (h *Handler) IsAdmin(userID int64) bool {
	return h.adminID != 0 && userID == h.adminID
}

// HandleCommand runs an /admin_* message and answers in the same chat.
func (h *Handler) HandleCommand(ctx context.Context, bot Sender, msg *tgbotapi.Message) {
	if msg == nil || msg.From == nil || !h.IsAdmin(msg.From.ID) {
		return
	}
	cmd := msg.Command()
	reply, err := h.Execute(ctx, cmd, strings.Fields(msg.CommandArguments()))
	switch {
	case errors.Is(err, ErrUnknownCommand):
		reply = "Неизвестная админ-команда. Список: /admin_help"
	case err != nil:
		var usage *UsageError
		var invalid *services.ValidationError
		if errors.As(err, &usage) || errors.As(err, &invalid) {
			reply = err.Error()
		} else {
			h.log.Error("admin command failed", zap.String("command", cmd), zap.Error(err))
			reply = "Ошибка: " + err.Error()
		}
	}
	if _, err := bot.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		h.log.Warn("admin reply failed", zap.Error(err))
	}
	logger.LogAdminAction(h.log, msg.From.ID, cmd, msg.Text)
}

// Execute runs one admin command and returns the reply text.
func (h *Handler) Execute(ctx context.Context, cmd string, args []string) (string, error) {
	switch cmd {
	case "admin_help":
		return helpText, nil
	case "admin_stats":
		return h.stats(ctx)
	case "admin_promo_new":
		return h.promoNew(ctx, args)
	case "admin_promo_list":
		return h.promoList(ctx, args)
	case "admin_promo_toggle":
		return h.promoToggle(ctx, args)
	case "admin_promo_delete":
		return h.promoDelete(ctx, args)
	case "admin_promo_allow":
		return h.promoAllow(ctx, args)
	case "admin_promo_availability":
		return h.promoAvailability(ctx, args)
	case "admin_promo_max_days":
		return h.promoMaxDays(ctx, args)
	case "admin_plan_new":
		return h.planNew(ctx, args)
	case "admin_plans":
		return h.planList(ctx)
	case "admin_gateway":
		return h.gateway(ctx, args)
	case "admin_webhooks":
		return h.webhooks(ctx)
	}
	return "", ErrUnknownCommand
}

const helpText = `Админ-команды:
/admin_stats — статистика
/admin_promo_new <TYPE> <reward> [code|-] [lifetime] [max] [plan_id]
/admin_promo_list [TYPE|active|inactive]
/admin_promo_toggle <id>
/admin_promo_delete <id>
/admin_promo_allow <id> <tg_id,tg_id,...>
/admin_promo_availability <id> <ALL|NEW|EXISTING|INVITED|ALLOWED>
/admin_promo_max_days <id> <days|->
/admin_plan_new <name> <TYPE> <traffic_gb> <devices> <days:CUR:price,...>
/admin_plans
/admin_gateway <type> on|off
/admin_webhooks — последние вебхуки`

func (h *Handler) stats(ctx context.Context) (string, error) {
	users, err := h.deps.Users.Count(ctx)
	if err != nil {
		return "", err
	}
	active, err := h.deps.Subs.CountActive(ctx)
	if err != nil {
		return "", err
	}
	now := time.Now()
	today, err := h.deps.Transactions.CountCompleted(ctx, now.Truncate(24*time.Hour))
	if err != nil {
		return "", err
	}
	month, err := h.deps.Transactions.CountCompleted(ctx, now.AddDate(0, 0, -30))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Пользователей: %d\nАктивных подписок: %d\nОплат сегодня: %s\nОплат за 30 дней: %s",
		users, active, formatTotals(today), formatTotals(month)), nil
}

func formatTotals(totals []db.CurrencyTotal) string {
	if len(totals) == 0 {
		return "0"
	}
	parts := make([]string, 0, len(totals))
	for _, t := range totals {
		parts = append(parts, fmt.Sprintf("%d (%s)", t.Count, t.Currency))
	}
	return strings.Join(parts, ", ")
}

func (h *Handler) promoNew(ctx context.Context, args []string) (string, error) {
	const usage = "/admin_promo_new <TYPE> <reward> [code|-] [lifetime] [max] [plan_id]"
	if len(args) < 2 {
		return "", &UsageError{Usage: usage}
	}
	reward, err := strconv.Atoi(args[1])
	if err != nil {
		return "", &UsageError{Usage: usage}
	}
	promo := &db.Promocode{
		RewardType:     db.PromocodeRewardType(strings.ToUpper(args[0])),
		Reward:         reward,
		Availability:   db.AvailabilityAll,
		Lifetime:       db.Unlimited,
		MaxActivations: db.Unlimited,
		IsActive:       true,
	}
	if len(args) > 2 && args[2] != "-" {
		promo.Code = args[2]
	}
	if len(args) > 3 {
		if promo.Lifetime, err = strconv.Atoi(args[3]); err != nil {
			return "", &UsageError{Usage: usage}
		}
	}
	if len(args) > 4 {
		if promo.MaxActivations, err = strconv.Atoi(args[4]); err != nil {
			return "", &UsageError{Usage: usage}
		}
	}
	if len(args) > 5 {
		planID, err := strconv.ParseUint(args[5], 10, 64)
		if err != nil {
			return "", &UsageError{Usage: usage}
		}
		plan, err := h.deps.Plans.Get(ctx, uint(planID))
		if err != nil {
			return "", fmt.Errorf("план %d: %w", planID, err)
		}
		snapshot := plan.Snapshot()
		promo.Plan = datatypes.NewJSONType(&snapshot)
	}
	if err := h.deps.Promocodes.Create(ctx, promo); err != nil {
		return "", err
	}
	return fmt.Sprintf("Промокод %s создан (id %d)", promo.Code, promo.ID), nil
}

func (h *Handler) promoList(ctx context.Context, args []string) (string, error) {
	var (
		promos []db.Promocode
		err    error
	)
	filter := ""
	if len(args) > 0 {
		filter = strings.ToLower(args[0])
	}
	switch filter {
	case "":
		promos, err = h.deps.Promocodes.List(ctx)
	case "active", "inactive":
		promos, err = h.deps.Promocodes.FilterActive(ctx, filter == "active")
	default:
		promos, err = h.deps.Promocodes.FilterByType(ctx, db.PromocodeRewardType(strings.ToUpper(filter)))
	}
	if err != nil {
		return "", err
	}
	if len(promos) == 0 {
		return "Промокодов нет", nil
	}
	var sb strings.Builder
	for _, p := range promos {
		state := "вкл"
		if !p.IsActive {
			state = "выкл"
		}
		fmt.Fprintf(&sb, "#%d %s %s %d, %s, активаций %d/%s, %s\n",
			p.ID, p.Code, p.RewardType, p.Reward, p.Availability, len(p.Activations), limit(p.MaxActivations), state)
	}
	return sb.String(), nil
}

func limit(v int) string {
	if v == db.Unlimited {
		return "∞"
	}
	return strconv.Itoa(v)
}

func (h *Handler) promoToggle(ctx context.Context, args []string) (string, error) {
	id, err := parseID(args, "/admin_promo_toggle <id>")
	if err != nil {
		return "", err
	}
	active, err := h.deps.Promocodes.ToggleActive(ctx, id)
	if err != nil {
		return "", err
	}
	if active {
		return fmt.Sprintf("Промокод #%d включён", id), nil
	}
	return fmt.Sprintf("Промокод #%d выключен", id), nil
}

func (h *Handler) promoDelete(ctx context.Context, args []string) (string, error) {
	id, err := parseID(args, "/admin_promo_delete <id>")
	if err != nil {
		return "", err
	}
	deleted, err := h.deps.Promocodes.Delete(ctx, id)
	if err != nil {
		return "", err
	}
	if !deleted {
		return fmt.Sprintf("Промокод #%d не найден", id), nil
	}
	return fmt.Sprintf("Промокод #%d удалён", id), nil
}

func (h *Handler) promoAllow(ctx context.Context, args []string) (string, error) {
	const usage = "/admin_promo_allow <id> <tg_id,tg_id,...>"
	if len(args) != 2 {
		return "", &UsageError{Usage: usage}
	}
	id, err := parseID(args[:1], usage)
	if err != nil {
		return "", err
	}
	var ids []int64
	for _, raw := range strings.Split(args[1], ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return "", &UsageError{Usage: usage}
		}
		ids = append(ids, v)
	}
	if err := h.deps.Promocodes.SetAllowed(ctx, id, ids); err != nil {
		return "", err
	}
	return fmt.Sprintf("Промокод #%d доступен %d пользователям", id, len(ids)), nil
}

func (h *Handler) promoAvailability(ctx context.Context, args []string) (string, error) {
	const usage = "/admin_promo_availability <id> <ALL|NEW|EXISTING|INVITED|ALLOWED>"
	if len(args) != 2 {
		return "", &UsageError{Usage: usage}
	}
	id, err := parseID(args[:1], usage)
	if err != nil {
		return "", err
	}
	availability := db.PromocodeAvailability(strings.ToUpper(args[1]))
	if err := h.deps.Promocodes.SetAvailability(ctx, id, availability); err != nil {
		return "", err
	}
	return fmt.Sprintf("Промокод #%d: доступность %s", id, availability), nil
}

func (h *Handler) promoMaxDays(ctx context.Context, args []string) (string, error) {
	const usage = "/admin_promo_max_days <id> <days|->"
	if len(args) != 2 {
		return "", &UsageError{Usage: usage}
	}
	id, err := parseID(args[:1], usage)
	if err != nil {
		return "", err
	}
	if args[1] == "-" {
		if err := h.deps.Promocodes.SetPurchaseDiscountMaxDays(ctx, id, nil); err != nil {
			return "", err
		}
		return fmt.Sprintf("Промокод #%d: скидка на любой срок", id), nil
	}
	days, err := strconv.Atoi(args[1])
	if err != nil {
		return "", &UsageError{Usage: usage}
	}
	if err := h.deps.Promocodes.SetPurchaseDiscountMaxDays(ctx, id, &days); err != nil {
		return "", err
	}
	return fmt.Sprintf("Промокод #%d: скидка на покупки до %d дн.", id, days), nil
}

func (h *Handler) planNew(ctx context.Context, args []string) (string, error) {
	const usage = "/admin_plan_new <name> <TYPE> <traffic_gb> <devices> <days:CUR:price,...>"
	if len(args) != 5 {
		return "", &UsageError{Usage: usage}
	}
	traffic, err1 := strconv.Atoi(args[2])
	devices, err2 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil {
		return "", &UsageError{Usage: usage}
	}
	durations, err := parseDurations(args[4])
	if err != nil {
		return "", &UsageError{Usage: usage}
	}
	plan := &db.Plan{
		Name:         args[0],
		Type:         db.PlanType(strings.ToUpper(args[1])),
		IsActive:     true,
		TrafficLimit: traffic,
		DeviceLimit:  devices,
		Durations:    datatypes.JSONSlice[db.PlanDuration](durations),
	}
	if err := h.deps.Plans.Create(ctx, plan); err != nil {
		return "", err
	}
	return fmt.Sprintf("План %s создан (id %d)", plan.Name, plan.ID), nil
}

// parseDurations reads "30:RUB:199,30:XTR:150,90:RUB:499" keeping the order
// in which durations first appear.
func parseDurations(s string) ([]db.PlanDuration, error) {
	var out []db.PlanDuration
	index := map[int]int{}
	for _, item := range strings.Split(s, ",") {
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("bad duration %q", item)
		}
		days, err := strconv.Atoi(parts[0])
		if err != nil || days <= 0 {
			return nil, fmt.Errorf("bad days %q", parts[0])
		}
		price, err := decimal.NewFromString(parts[2])
		if err != nil || price.IsNegative() {
			return nil, fmt.Errorf("bad price %q", parts[2])
		}
		i, ok := index[days]
		if !ok {
			i = len(out)
			index[days] = i
			out = append(out, db.PlanDuration{Days: days})
		}
		out[i].Prices = append(out[i].Prices, db.PlanPrice{Currency: db.Currency(strings.ToUpper(parts[1])), Price: price})
	}
	return out, nil
}

func (h *Handler) planList(ctx context.Context) (string, error) {
	plans, err := h.deps.Plans.ListActive(ctx)
	if err != nil {
		return "", err
	}
	if len(plans) == 0 {
		return "Активных планов нет", nil
	}
	var sb strings.Builder
	for _, p := range plans {
		fmt.Fprintf(&sb, "#%d %s (%s), трафик %d ГБ, устройств %d\n", p.ID, p.Name, p.Type, p.TrafficLimit, p.DeviceLimit)
		for _, d := range p.Durations {
			prices := make([]string, 0, len(d.Prices))
			for _, pr := range d.Prices {
				prices = append(prices, pr.Price.String()+" "+string(pr.Currency))
			}
			fmt.Fprintf(&sb, "  %d дн.: %s\n", d.Days, strings.Join(prices, ", "))
		}
	}
	return sb.String(), nil
}

func (h *Handler) gateway(ctx context.Context, args []string) (string, error) {
	const usage = "/admin_gateway <type> on|off"
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		return "", &UsageError{Usage: usage}
	}
	t, err := db.ParseGatewayType(args[0])
	if err != nil {
		return "", &UsageError{Usage: usage}
	}
	if err := h.deps.Gateways.SetActive(ctx, t, args[1] == "on"); err != nil {
		return "", err
	}
	return fmt.Sprintf("Шлюз %s: %s", t, args[1]), nil
}

func (h *Handler) webhooks(ctx context.Context) (string, error) {
	entries, err := h.deps.WebhookLogs.Recent(ctx, 10)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "Вебхуков не было", nil
	}
	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "#%d %s %s → %d", e.ID, e.CreatedAt.Format("02.01 15:04:05"), e.GatewayType, e.StatusCode)
		if e.PaymentID != nil {
			fmt.Fprintf(&sb, " %s", e.PaymentID)
		}
		if e.Error != nil {
			fmt.Fprintf(&sb, " (%s)", *e.Error)
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func parseID(args []string, usage string) (uint, error) {
	if len(args) < 1 {
		return 0, &UsageError{Usage: usage}
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, &UsageError{Usage: usage}
	}
	return uint(id), nil
}
