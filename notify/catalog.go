/*
Package notify renders and delivers dues reminders.

PURPOSE:
  Catalog implements dues.MessageComposer for the supported locales.
  LogSender and PubSubSender implement dues.PushSender.

LOCALES:
  en: "Hikers: Monthly dues due soon"
  ko: "Hikers 월회비 납부 안내"

  Periods render as "March 2025" / "2025년 3월" for monthly charges and
  "2025" / "2025년" for yearly ones. Amounts always carry two decimals
  and the currency code.

SEE ALSO:
  - dues/reminder.go: ReminderDispatcher, the only caller
*/
package notify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/warp/club-dues/dues"
)

type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleKorean  Locale = "ko"
)

// ErrUnknownLocale is returned for locales without a message table.
var ErrUnknownLocale = errors.New("unknown locale")

type messages struct {
	labels      map[dues.DuesType]string
	monthPeriod func(p dues.BillingPeriod) string
	yearPeriod  func(p dues.BillingPeriod) string
	title       func(club, label string) string
	body        func(label, period, amount string, days int) string
}

var catalogs = map[Locale]messages{
	LocaleEnglish: {
		labels: map[dues.DuesType]string{
			dues.DuesJoin:    "Joining fee",
			dues.DuesMonthly: "Monthly dues",
			dues.DuesYearly:  "Annual dues",
			dues.DuesLateFee: "Late fee",
		},
		monthPeriod: func(p dues.BillingPeriod) string {
			return fmt.Sprintf("%s %d", p.Month, p.Year)
		},
		yearPeriod: func(p dues.BillingPeriod) string {
			return fmt.Sprintf("%d", p.Year)
		},
		title: func(club, label string) string {
			return fmt.Sprintf("%s: %s due soon", club, label)
		},
		body: func(label, period, amount string, days int) string {
			unit := "days"
			if days == 1 {
				unit = "day"
			}
			return fmt.Sprintf("%s for %s (%s) is due in %d %s.", label, period, amount, days, unit)
		},
	},
	LocaleKorean: {
		labels: map[dues.DuesType]string{
			dues.DuesJoin:    "가입비",
			dues.DuesMonthly: "월회비",
			dues.DuesYearly:  "연회비",
			dues.DuesLateFee: "연체료",
		},
		monthPeriod: func(p dues.BillingPeriod) string {
			return fmt.Sprintf("%d년 %d월", p.Year, int(p.Month))
		},
		yearPeriod: func(p dues.BillingPeriod) string {
			return fmt.Sprintf("%d년", p.Year)
		},
		title: func(club, label string) string {
			return fmt.Sprintf("%s %s 납부 안내", club, label)
		},
		body: func(label, period, amount string, days int) string {
			return fmt.Sprintf("%s %s %s 납부 기한이 %d일 남았습니다.", period, label, amount, days)
		},
	},
}

// Catalog renders reminders in one locale.
type Catalog struct {
	locale Locale
	msgs   messages
}

// NewCatalog returns the catalog for locale. Region suffixes ("en-US",
// "ko_KR") are ignored and an empty locale means English.
func NewCatalog(locale string) (*Catalog, error) {
	base := strings.ToLower(locale)
	if i := strings.IndexAny(base, "-_"); i >= 0 {
		base = base[:i]
	}
	if base == "" {
		base = string(LocaleEnglish)
	}
	msgs, ok := catalogs[Locale(base)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLocale, locale)
	}
	return &Catalog{locale: Locale(base), msgs: msgs}, nil
}

func (c *Catalog) Locale() Locale { return c.locale }

// Label returns the localized dues type name.
func (c *Catalog) Label(t dues.DuesType) string {
	if label, ok := c.msgs.labels[t]; ok {
		return label
	}
	return string(t)
}

// Period renders a billing period.
func (c *Catalog) Period(p dues.BillingPeriod) string {
	if p.HasMonth() {
		return c.msgs.monthPeriod(p)
	}
	return c.msgs.yearPeriod(p)
}

// Amount renders "30.00 USD".
func Amount(m dues.Money, currency string) string {
	return m.StringFixed(2) + " " + currency
}

// Compose implements dues.MessageComposer.
func (c *Catalog) Compose(content dues.ReminderContent) (string, string) {
	label := c.Label(content.DuesType)
	title := c.msgs.title(content.ClubName, label)
	body := c.msgs.body(label, c.Period(content.Period), Amount(content.Amount, content.Currency), content.DaysRemaining)
	return title, body
}
