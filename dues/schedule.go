package dues

import "time"

// GenerationLeadDays is how far ahead of a due date charges are generated.
const GenerationLeadDays = 10

// MonthlyDueDate is the due date of a monthly charge for ym. Due days past
// the end of a short month fall on its last day.
func MonthlyDueDate(dueDay int, ym YearMonth) time.Time {
	return DateIn(ym, dueDay)
}

// NextDueDate returns this month's due date, or next month's when this
// month's has already passed.
func NextDueDate(dueDay int, today time.Time) time.Time {
	day := DateOf(today)
	current := YearMonthOf(day)
	next := MonthlyDueDate(dueDay, current)
	if next.Before(day) {
		next = MonthlyDueDate(dueDay, current.AddMonths(1))
	}
	return next
}

// GenerationDate is the day charges are generated for the next due date.
func GenerationDate(dueDay int, today time.Time) time.Time {
	return NextDueDate(dueDay, today).AddDate(0, 0, -GenerationLeadDays)
}

// ShouldGenerate reports whether today is the generation trigger day for
// a club with the given due day. Missed days are not backfilled.
func ShouldGenerate(dueDay int, today time.Time) bool {
	return DateOf(today).Equal(GenerationDate(dueDay, today))
}

// TargetPeriod returns the billing month a generation run on today bills:
// the month whose due date falls within the next GenerationLeadDays.
func TargetPeriod(dueDay int, today time.Time) YearMonth {
	day := DateOf(today)
	current := YearMonthOf(day)
	if MonthlyDueDate(dueDay, current).Day() < day.Day()+GenerationLeadDays {
		return current.AddMonths(1)
	}
	return current
}
