// Package timeparse turns the free text typed into a reminder wizard into
// absolute instants and canonical recurrence intervals.
//
// Two families of input are understood:
//   - Absolute expressions ("tomorrow 5pm", "25/12/2026 at 09:00", "next friday")
//     resolved in a tenant timezone by ParseAbsolute.
//   - Intervals ("2h", "1 week, 3 days", "month") normalised by NormaliseInterval
//     into the canonical "n unit[s]" form and applied by AddInterval.
//
// Interval arithmetic always applies calendar units (year, month, week, day)
// before clock units (hour, minute, second).
package timeparse
